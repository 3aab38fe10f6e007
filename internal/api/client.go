// Package api はリモートAPIへのすべての呼び出しを仲介するリクエストパイプラインを提供する。
// 認証ヘッダーの付与、エンベロープの解釈、エラー分類、アクセストークン失効時の単一リフレッシュを担う。
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/shelfman/internal/credential"
	"github.com/hitoshi/shelfman/internal/metrics"
	"github.com/hitoshi/shelfman/internal/model"
)

const (
	// DefaultTimeout は1回の呼び出しのタイムアウト。
	DefaultTimeout = 15 * time.Second
	// maxResponseBytes はレスポンス本文の読み込み上限。
	maxResponseBytes = 10 << 20

	refreshPath        = "/api/auth/refresh"
	refreshTokenHeader = "X-Refresh-Token"
)

// セッション終了の理由。
const (
	ReasonNoRefreshToken = "no_refresh_token"
	ReasonRefreshFailed  = "refresh_failed"
	ReasonReplayRejected = "replay_rejected"
	ReasonLogout         = "logout"
)

// Request は1回のAPI呼び出しを表す。
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	// Public はログインなど認証不要の呼び出し。認証ヘッダーを付与せず、401はストアに触れずに UNAUTHORIZED として返す。
	Public bool
	// NoRecover は401を受けてもリフレッシュせず、ストアにも触れずに SessionExpiredError を返す。
	NoRecover bool
}

// Config はClientの設定。
type Config struct {
	BaseURL string
	// HTTPClient は送信に使うクライアント。nilの場合は Timeout を設定した http.Client を使う。
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *slog.Logger
	Metrics    metrics.MetricsCollector
}

// Client はリクエストパイプライン。複数のゴルーチンから同時に使用できる。
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	timeout    time.Duration
	store      *credential.Store
	logger     *slog.Logger
	metrics    metrics.MetricsCollector

	refreshGroup singleflight.Group

	listenersMu sync.RWMutex
	listeners   []func(reason string)
}

// New はClientを生成する。
func New(cfg Config, store *credential.Store) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("credential store is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid API base URL %q: scheme must be http or https", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var m metrics.MetricsCollector = metrics.Nop{}
	if cfg.Metrics != nil {
		m = cfg.Metrics
	}

	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		timeout:    timeout,
		store:      store,
		logger:     logger,
		metrics:    m,
	}, nil
}

// Store はClientが使用するクレデンシャルストアを返す。
func (c *Client) Store() *credential.Store {
	return c.store
}

// OnSessionEnded はセッション終了時に呼び出されるリスナーを登録する。
// リスナーはセッションが実際に空になった時点で1回だけ、呼び出し元のゴルーチンで同期的に呼ばれる。
func (c *Client) OnSessionEnded(fn func(reason string)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Client) emitSessionEnded(reason string) {
	c.metrics.RecordSessionEnded(reason)
	c.logger.Info("session ended", slog.String("reason", reason))

	c.listenersMu.RLock()
	listeners := make([]func(string), len(c.listeners))
	copy(listeners, c.listeners)
	c.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(reason)
	}
}

// Establish はログインで得たセッションをストアに保存する。
func (c *Client) Establish(ctx context.Context, cred model.Credential) error {
	return c.store.Save(ctx, cred)
}

// Terminate はログアウトによりセッションを破棄する。セッション終了のリスナーは呼ばない。
func (c *Client) Terminate(ctx context.Context) bool {
	existed := c.store.Clear(ctx)
	if existed {
		c.metrics.RecordSessionEnded(ReasonLogout)
	}
	return existed
}

// Get はGETリクエストを送信し、レスポンスのdataを out にデコードする。
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// Post はPOSTリクエストを送信し、レスポンスのdataを out にデコードする。
func (c *Client) Post(ctx context.Context, path string, body any, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Put はPUTリクエストを送信し、レスポンスのdataを out にデコードする。
func (c *Client) Put(ctx context.Context, path string, query url.Values, body any, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Query: query, Body: body}, out)
}

// Delete はDELETEリクエストを送信する。
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path}, out)
}

// Do はリクエストを送信し、成功した場合はエンベロープのdataを out にデコードする。out がnilの場合はデコードしない。
// 失敗はすべて *model.APIError として返る。保護されたリクエストが401を受けた場合はリフレッシュを1回だけ試み、
// 成功すれば新しいトークンで1回だけ再送する。
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	token := ""
	if !req.Public {
		token = c.store.AccessToken()
	}

	res := c.send(ctx, req, token)
	switch res.kind {
	case outcomeOK:
		return decodeData(res, out)
	case outcomeAuthExpired:
		if req.Public {
			return model.NewUnauthorizedError(res.message)
		}
		if req.NoRecover {
			return model.NewSessionExpiredError(nil)
		}
		return c.recoverAuth(ctx, req, token, out)
	default:
		return res.err
	}
}

// recoverAuth は保護されたリクエストが401を受けた後の処理を行う。
// usedToken はその失敗したリクエストに付与したアクセストークン。
func (c *Client) recoverAuth(ctx context.Context, req Request, usedToken string, out any) error {
	current := c.store.AccessToken()

	// 他の呼び出しがすでにトークンを更新済み
	if current != "" && current != usedToken {
		return c.replay(ctx, req, current, out)
	}

	// 他の呼び出しがすでにセッションを終了済み
	if current == "" && usedToken != "" {
		return model.NewSessionExpiredError(nil)
	}

	refreshToken := c.store.RefreshToken()
	if refreshToken == "" {
		existed := c.store.Clear(ctx)
		if existed || usedToken == "" {
			c.emitSessionEnded(ReasonNoRefreshToken)
		}
		return model.NewSessionExpiredError(nil)
	}

	newToken, err := c.refresh(ctx, refreshToken)
	if err != nil {
		// 呼び出し元が待機を打ち切った場合、リフレッシュ自体は継続している
		if ctx.Err() != nil {
			return model.NewNetworkError(ctx.Err())
		}
		return model.NewSessionExpiredError(err)
	}
	return c.replay(ctx, req, newToken, out)
}

// replay は新しいアクセストークンで元のリクエストを1回だけ再送する。再送で401を受けた場合はセッションを終了する。
func (c *Client) replay(ctx context.Context, req Request, token string, out any) error {
	res := c.send(ctx, req, token)
	switch res.kind {
	case outcomeOK:
		return decodeData(res, out)
	case outcomeAuthExpired:
		if c.store.Clear(ctx) {
			c.emitSessionEnded(ReasonReplayRejected)
		}
		return model.NewSessionExpiredError(nil)
	default:
		return res.err
	}
}

// send はリクエストを1回送信し、結果を分類する。
func (c *Client) send(ctx context.Context, req Request, token string) outcome {
	start := time.Now()
	res := c.roundTrip(ctx, req, token)

	c.metrics.RecordLatency(time.Since(start))
	c.metrics.RecordRequest(res.metricLabel())
	if res.status != 0 {
		c.metrics.RecordHTTPStatus(res.status)
	}
	return res
}

func (c *Client) roundTrip(ctx context.Context, req Request, token string) outcome {
	httpReq, err := c.newHTTPRequest(ctx, req.Method, req.Path, req.Query, req.Body)
	if err != nil {
		return outcome{kind: outcomeFailed, err: model.NewNetworkError(err)}
	}
	if token != "" && !req.Public {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	status, body, err := c.execute(httpReq)
	if err != nil {
		return outcome{kind: outcomeFailed, err: model.NewNetworkError(err)}
	}
	return classifyResponse(status, body)
}

func (c *Client) newHTTPRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	return httpReq, nil
}

func (c *Client) execute(httpReq *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// decodeData はエンベロープのdataを out にデコードする。
func decodeData(res outcome, out any) error {
	if out == nil || res.envelope == nil {
		return nil
	}
	data := res.envelope.Data
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		apiErr := model.NewRequestFailedError(res.status, "レスポンスの解析に失敗しました。")
		apiErr.Err = err
		return apiErr
	}
	return nil
}
