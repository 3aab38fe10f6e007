// Package watch はログイン中ユーザーの借用記録を定期的に確認し、延滞と返却期限の接近を通知する。
package watch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/shelfman/internal/borrow"
	"github.com/hitoshi/shelfman/internal/model"
)

// LoanLister は自分の借用記録を取得するインターフェース。
type LoanLister interface {
	Mine(ctx context.Context, q model.LoanQuery) (*model.PageResult[model.LoanRecord], error)
}

// SessionChecker はセッションの有無を返す。セッションがない間は確認を行わない。
type SessionChecker interface {
	Authenticated() bool
}

// Recorder は確認結果の記録先。
type Recorder interface {
	RecordLoanStates(borrowing, overdue, dueSoon int)
}

// Report は1回の確認結果。
type Report struct {
	Borrowing int
	Overdue   int
	DueSoon   int
	// NewlyOverdue は今回初めて延滞と判定された借用ID。
	NewlyOverdue []int64
}

// Config はWatcherの設定。
type Config struct {
	DueSoon        time.Duration // この期間内に期限を迎える借用を「期限間近」とする
	PageSize       int
	MaxPages       int
	MaxConcurrency int
}

// DefaultConfig はデフォルトの設定を返す。
func DefaultConfig() Config {
	return Config{
		DueSoon:        72 * time.Hour,
		PageSize:       50,
		MaxPages:       20,
		MaxConcurrency: 4,
	}
}

// 通知済みの状態。
type noticeState int

const (
	noticeDueSoon noticeState = iota + 1
	noticeOverdue
)

// Watcher は借用記録の定期確認を行う。
type Watcher struct {
	loans    LoanLister
	session  SessionChecker
	recorder Recorder
	policy   borrow.Policy
	config   Config
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	notified map[int64]noticeState
}

// NewWatcher は新しいWatcherを生成する。recorderはnilでもよい。
func NewWatcher(loans LoanLister, session SessionChecker, recorder Recorder, policy borrow.Policy, config Config, logger *slog.Logger) *Watcher {
	defaults := DefaultConfig()
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.MaxPages <= 0 {
		config.MaxPages = defaults.MaxPages
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		loans:    loans,
		session:  session,
		recorder: recorder,
		policy:   policy,
		config:   config,
		logger:   logger,
		now:      time.Now,
		notified: make(map[int64]noticeState),
	}
}

// Start は interval ごとに確認を行う。起動直後にも1回実行する。
// ctxがキャンセルされるまで戻らない。
func (w *Watcher) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("loan watcher started", slog.Duration("interval", interval))

	w.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("loan watcher stopped")
			return
		case <-ticker.C:
			w.runLogged(ctx)
		}
	}
}

func (w *Watcher) runLogged(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
		w.logger.Warn("loan watch failed", slog.String("error", err.Error()))
	}
}

// RunOnce は借用記録を1回確認する。セッションがない場合は何もせずゼロ値を返す。
func (w *Watcher) RunOnce(ctx context.Context) (Report, error) {
	if !w.session.Authenticated() {
		return Report{}, nil
	}

	records, err := w.fetchAll(ctx)
	if err != nil {
		if errors.Is(err, model.ErrSessionExpired) {
			return Report{}, nil
		}
		return Report{}, err
	}

	report := w.evaluate(records, w.now())
	if w.recorder != nil {
		w.recorder.RecordLoanStates(report.Borrowing, report.Overdue, report.DueSoon)
	}
	return report, nil
}

// fetchAll は1ページ目で総ページ数を確認し、残りのページを並列に取得する。
func (w *Watcher) fetchAll(ctx context.Context) ([]model.LoanRecord, error) {
	first, err := w.loans.Mine(ctx, model.LoanQuery{Page: 1, Size: w.config.PageSize})
	if err != nil {
		return nil, err
	}

	pages := min(int(first.Pages), w.config.MaxPages)
	if pages <= 1 {
		return first.Records, nil
	}

	results := make([][]model.LoanRecord, pages)
	results[0] = first.Records

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.MaxConcurrency)
	for page := 2; page <= pages; page++ {
		g.Go(func() error {
			res, err := w.loans.Mine(gctx, model.LoanQuery{Page: page, Size: w.config.PageSize})
			if err != nil {
				return err
			}
			results[page-1] = res.Records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []model.LoanRecord
	for _, recs := range results {
		all = append(all, recs...)
	}
	return all, nil
}

// evaluate は記録を集計し、状態が変わった借用だけを通知する。
func (w *Watcher) evaluate(records []model.LoanRecord, now time.Time) Report {
	w.mu.Lock()
	defer w.mu.Unlock()

	var report Report
	seen := make(map[int64]bool, len(records))

	for _, r := range records {
		status := w.policy.DisplayStatus(r, now)
		if status == model.LoanStatusReturned {
			continue
		}
		seen[r.ID] = true

		if status == model.LoanStatusOverdue {
			report.Overdue++
			if w.notified[r.ID] != noticeOverdue {
				w.notified[r.ID] = noticeOverdue
				report.NewlyOverdue = append(report.NewlyOverdue, r.ID)
				w.logger.Warn("loan overdue",
					slog.Int64("loan_id", r.ID),
					slog.Int64("book_id", r.BookID),
					slog.String("book_title", r.BookTitle),
					slog.Int64("overdue_days", w.policy.OverdueDays(r, now)),
				)
			}
			continue
		}

		report.Borrowing++
		due, ok := w.policy.DueAt(r)
		if !ok || due.Sub(now) > w.config.DueSoon {
			// 延長で期限が延びた場合は再び期限間近になったときに通知する
			delete(w.notified, r.ID)
			continue
		}
		report.DueSoon++
		if w.notified[r.ID] == 0 {
			w.notified[r.ID] = noticeDueSoon
			w.logger.Info("loan due soon",
				slog.Int64("loan_id", r.ID),
				slog.Int64("book_id", r.BookID),
				slog.String("book_title", r.BookTitle),
				slog.Time("due_at", due),
				slog.Bool("can_renew", w.policy.CanRenew(r, now)),
			)
		}
	}

	// 返却済みや一覧から消えた借用は次回から再通知できるようにする
	for id := range w.notified {
		if !seen[id] {
			delete(w.notified, id)
		}
	}

	return report
}
