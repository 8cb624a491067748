package revocation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/cheng-cc-cc/heima-headline/pkg/logging"
)

// DefaultSchedule はSnapshotを更新するデフォルトのスケジュール。
const DefaultSchedule = "@every 30s"

// WatcherConfig はWatcherの設定。
type WatcherConfig struct {
	// Schedule は更新のスケジュール（cron形式または "@every 30s" 形式）。
	Schedule string
	// Logger はログの出力先。
	Logger *logging.Logger
	// Now は時刻源。nilの場合は time.Now。
	Now func() time.Time
}

// Watcher はStoreから失効情報を定期的に読み込み、最新のSnapshotを保持する。
// token.RevocationChecker を実装し、判定はメモリ上のSnapshotのみで行う。
type Watcher struct {
	store    Store
	schedule string
	logger   *logging.Logger
	now      func() time.Time
	current  atomic.Pointer[Snapshot]

	mu sync.Mutex
	// cron は実行中の定期更新。停止中はnil。
	cron *cron.Cron
	// done はStopで閉じられ、実行中のctx監視を終了させる。
	done chan struct{}
}

// NewWatcher は新しいWatcherを生成する。Startを呼ぶまでSnapshotは空。
func NewWatcher(store Store, cfg WatcherConfig) *Watcher {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Watcher{
		store:    store,
		schedule: cfg.Schedule,
		logger:   cfg.Logger.Named("revocation"),
		now:      cfg.Now,
	}
}

// IsRevoked は現在のSnapshotでトークンまたはユーザーが失効しているかを返す。
func (w *Watcher) IsRevoked(tokenID, userID string) bool {
	return w.current.Load().IsRevoked(tokenID, userID)
}

// Snapshot は現在のSnapshotを返す。未読み込みの場合はnil。
func (w *Watcher) Snapshot() *Snapshot {
	return w.current.Load()
}

// Refresh はStoreから失効情報を読み込み、Snapshotを置き換える。
// 読み込みに失敗した場合は直前のSnapshotを維持する。
func (w *Watcher) Refresh(ctx context.Context) error {
	now := w.now()
	entries, err := w.store.List(ctx, now)
	if err != nil {
		return fmt.Errorf("失効情報の読み込みに失敗: %w", err)
	}
	w.current.Store(NewSnapshot(entries, now))
	return nil
}

// Start は最初の読み込みを行い、以降はスケジュールに従って更新と削除を行う。
// ctxがキャンセルされると停止する。実行中に呼んだ場合は何もしない。
// Stopの後に再び呼ぶと新しいスケジューラで再開する。
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cron != nil {
		return nil
	}
	if _, err := cron.ParseStandard(w.schedule); err != nil {
		return fmt.Errorf("スケジュール %q が不正です: %w", w.schedule, err)
	}
	if err := w.Refresh(ctx); err != nil {
		return err
	}

	c := cron.New()
	if _, err := c.AddFunc(w.schedule, func() { w.run(ctx) }); err != nil {
		return fmt.Errorf("定期更新の登録に失敗: %w", err)
	}
	c.Start()

	done := make(chan struct{})
	w.cron = c
	w.done = done
	w.logger.Info("失効情報の定期更新を開始しました",
		zap.String("schedule", w.schedule),
		zap.Int("entries", w.current.Load().Len()),
		zap.Time("loaded_at", w.current.Load().LoadedAt()),
	)

	go func() {
		select {
		case <-ctx.Done():
			w.stop(c)
		case <-done:
		}
	}()
	return nil
}

// run は1回分の更新と削除を行う。
func (w *Watcher) run(ctx context.Context) {
	if err := w.Refresh(ctx); err != nil {
		w.logger.Error("失効情報の更新に失敗しました", zap.Error(err))
		return
	}

	pruned, err := w.store.Prune(ctx, w.now())
	if err != nil {
		w.logger.Warn("期限切れの失効情報の削除に失敗しました", zap.Error(err))
		return
	}
	snapshot := w.current.Load()
	w.logger.Debug("失効情報を更新しました",
		zap.Int("entries", snapshot.Len()),
		zap.Time("loaded_at", snapshot.LoadedAt()),
		zap.Int("pruned", pruned),
	)
}

// Stop は定期更新を停止し、実行中の更新の終了を待つ。
func (w *Watcher) Stop() {
	w.mu.Lock()
	c := w.cron
	w.mu.Unlock()
	w.stop(c)
}

// stop はcが実行中のスケジューラである場合に限り停止する。
func (w *Watcher) stop(c *cron.Cron) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if c == nil || w.cron != c {
		return
	}
	close(w.done)
	<-c.Stop().Done()
	w.cron = nil
	w.done = nil
	w.logger.Info("失効情報の定期更新を停止しました")
}
