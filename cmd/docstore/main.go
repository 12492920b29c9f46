// ローカルドキュメントストアのエントリポイント。
// リモートドキュメントストアと同じREST規約をSQLite上で提供し、
// ゲートウェイを外部サービスなしで動かせるようにする。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/shopgate/internal/config"
	"github.com/nao1215/shopgate/internal/docstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "docstore: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadDocstore(os.Getenv)
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗: %w", err)
	}
	logger := cfg.NewLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := docstore.Open(ctx, cfg.Path, logger)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var opts []docstore.Option
	if cfg.Secret != "" {
		opts = append(opts, docstore.WithSecret(cfg.Secret))
	}
	return docstore.NewServer(cfg.Port, db, logger, opts...).Run(ctx)
}
