package gateway

import (
	"context"
	"fmt"

	"github.com/cheng-cc-cc/heima-headline/internal/config"
	"github.com/cheng-cc-cc/heima-headline/pkg/logging"
	"github.com/cheng-cc-cc/heima-headline/pkg/revocation"
	"github.com/cheng-cc-cc/heima-headline/pkg/token"
)

// OpenRevocationStore は設定に従って失効情報のStoreを開く。
// 保存先が none の場合はnilを返す。
func OpenRevocationStore(ctx context.Context, cfg config.RevocationConfig, logger *logging.Logger) (revocation.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		store, err := revocation.OpenSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendRedis:
		store, err := revocation.OpenRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("失効情報の保存先 %q は未対応です", cfg.Backend)
	}
}

// NewValidator は設定からトークン検証器を生成する。
// storeがnil以外の場合は失効情報のWatcherを開始し、検証器に組み込む。
// 返されたWatcherはctxのキャンセルで停止する。
func NewValidator(
	ctx context.Context,
	cfg *config.Config,
	store revocation.Store,
	logger *logging.Logger,
) (*token.Validator, *revocation.Watcher, error) {
	if err := cfg.ValidateToken(); err != nil {
		return nil, nil, err
	}
	opts := []token.Option{token.WithIssuer(cfg.Token.Issuer)}

	var watcher *revocation.Watcher
	if store != nil {
		watcher = revocation.NewWatcher(store, revocation.WatcherConfig{
			Schedule: cfg.Revocation.Schedule,
			Logger:   logger,
		})
		if err := watcher.Start(ctx); err != nil {
			return nil, nil, fmt.Errorf("失効情報の監視開始に失敗: %w", err)
		}
		opts = append(opts, token.WithRevocation(watcher))
	}

	validator, err := token.NewValidator(cfg.Token.Secret, opts...)
	if err != nil {
		if watcher != nil {
			watcher.Stop()
		}
		return nil, nil, err
	}
	return validator, watcher, nil
}
