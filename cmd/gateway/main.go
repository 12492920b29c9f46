// ゲートウェイのエントリポイント。
// ユーザー登録・認証と商品カタログのHTTP APIを公開し、
// 永続化はすべてリモートドキュメントストアに委ねる。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/shopgate/internal/config"
	"github.com/nao1215/shopgate/internal/gateway"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗:\n%w", err)
	}
	logger := cfg.NewLogger(os.Stderr)
	if cfg.DevelopmentSecret() {
		logger.Warn("開発用のJWT秘密鍵を使用しています")
	}

	server, err := gateway.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("ゲートウェイの初期化に失敗: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Run(ctx)
}
