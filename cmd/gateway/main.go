// API Gatewayサービスのエントリポイント。
// アクセストークンの検証と下流サービスへのリクエスト転送を担当する。
// 外部からアクセス可能な唯一のサービスであり、認証の境界線となる。
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/cheng-cc-cc/heima-headline/internal/config"
	"github.com/cheng-cc-cc/heima-headline/internal/gateway"
	"github.com/cheng-cc-cc/heima-headline/pkg/logging"
)

func main() {
	configPath := flag.String("config", "", "設定ファイルのパス")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("Gatewayサービスが異常終了しました", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := gateway.OpenRevocationStore(ctx, cfg.Revocation, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	validator, watcher, err := gateway.NewValidator(ctx, cfg, store, logger)
	if err != nil {
		return err
	}
	if watcher != nil {
		defer watcher.Stop()
	}

	server, err := gateway.NewServer(cfg, validator, logger)
	if err != nil {
		return err
	}
	return server.Run(ctx)
}
