// 自媒体サービスのエントリポイント。
// ゲートウェイから転送されたリクエストを、付与されたユーザーIDで処理する。
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
	"github.com/cheng-cc-cc/heima-headline/internal/wemedia"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := wemedia.NewServer(cfg.Wemedia.Port, logger)
	if err := server.Run(ctx); err != nil {
		logger.Error("自媒体サービスが異常終了しました", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
