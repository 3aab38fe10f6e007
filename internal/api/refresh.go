package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/shelfman/internal/model"
)

// errRefreshRejected はリフレッシュエンドポイントが新しいトークンを返さなかったことを示す。
var errRefreshRejected = errors.New("refresh rejected")

// refresh はリフレッシュトークンで新しいアクセストークンを取得する。
// 同じリフレッシュトークンに対する同時の呼び出しは1回のネットワーク呼び出しにまとめられ、
// 全員が同じ結果を受け取る。失敗した場合はストアを空にし、セッション終了を1回だけ通知する。
func (c *Client) refresh(ctx context.Context, refreshToken string) (string, error) {
	ch := c.refreshGroup.DoChan(refreshToken, func() (any, error) {
		// 呼び出し元のキャンセルで後から合流した呼び出しが失敗しないよう、キャンセルを切り離す
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.doRefresh(flightCtx, refreshToken)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", model.NewNetworkError(ctx.Err())
	}
}

func (c *Client) doRefresh(ctx context.Context, refreshToken string) (string, error) {
	// 直前のリフレッシュですでにローテーション済み
	if current := c.store.RefreshToken(); current != refreshToken {
		if token := c.store.AccessToken(); token != "" {
			c.metrics.RecordRefresh("skipped")
			return token, nil
		}
		return "", errRefreshRejected
	}

	bundle, err := c.requestRefresh(ctx, refreshToken)
	if err == nil {
		if bundle.RefreshToken == "" {
			bundle.RefreshToken = refreshToken
		}
		err = c.store.UpdateTokens(ctx, bundle)
	}
	if err != nil {
		c.metrics.RecordRefresh("failure")
		c.logger.Warn("token refresh failed", slog.String("error", err.Error()))
		if c.store.Clear(ctx) {
			c.emitSessionEnded(ReasonRefreshFailed)
		}
		return "", err
	}

	c.metrics.RecordRefresh("success")
	return bundle.AccessToken, nil
}

// requestRefresh は POST /api/auth/refresh を呼び出す。認証ヘッダーは付与しない。
func (c *Client) requestRefresh(ctx context.Context, refreshToken string) (model.TokenBundle, error) {
	httpReq, err := c.newHTTPRequest(ctx, http.MethodPost, refreshPath, nil, nil)
	if err != nil {
		return model.TokenBundle{}, err
	}
	httpReq.Header.Set(refreshTokenHeader, refreshToken)

	res := c.sendPrepared(httpReq)
	switch res.kind {
	case outcomeOK:
	case outcomeAuthExpired:
		return model.TokenBundle{}, fmt.Errorf("%w: status %d", errRefreshRejected, res.status)
	default:
		return model.TokenBundle{}, res.err
	}

	var resp model.LoginResponse
	if len(res.envelope.Data) == 0 {
		return model.TokenBundle{}, fmt.Errorf("%w: empty data", errRefreshRejected)
	}
	if err := json.Unmarshal(res.envelope.Data, &resp); err != nil {
		return model.TokenBundle{}, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if resp.AccessToken == "" {
		return model.TokenBundle{}, fmt.Errorf("%w: no access token", errRefreshRejected)
	}
	return resp.Bundle(), nil
}

// sendPrepared は組み立て済みのリクエストを送信し、結果を分類する。
func (c *Client) sendPrepared(httpReq *http.Request) outcome {
	status, body, err := c.execute(httpReq)
	if err != nil {
		return outcome{kind: outcomeFailed, err: model.NewNetworkError(err)}
	}
	res := classifyResponse(status, body)
	c.metrics.RecordHTTPStatus(status)
	return res
}
