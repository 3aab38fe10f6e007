package handler

import (
	"net/http"

	"github.com/hitoshi/shelfman/internal/model"
)

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Status        string `json:"status"`
	Authenticated bool   `json:"authenticated"`
}

// NewHealthHandler はヘルスチェックのハンドラーを返す。
// GET /health
// リモートAPIは呼ばず、エージェント自身の稼働とセッションの有無のみを返す。
func NewHealthHandler(finder interface{ Identity() *model.Identity }) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{
			Status:        "ok",
			Authenticated: finder.Identity() != nil,
		})
	})
}
