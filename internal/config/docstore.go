package config

import (
	"io"
	"log/slog"
)

// DocstoreConfig はローカルドキュメントストアの実行時設定。
type DocstoreConfig struct {
	// Port はリッスンポート。
	Port string
	// Path はSQLiteファイルのパス。
	Path string
	// Secret は auth クエリパラメータと照合する秘密鍵。空なら照合しない。
	Secret string
	// LogLevel はログレベル。
	LogLevel slog.Level
}

// LoadDocstore は環境変数からローカルドキュメントストアの設定を構築する。
func LoadDocstore(getenv Getenv) (*DocstoreConfig, error) {
	cfg := &DocstoreConfig{
		Port:     "9000",
		Path:     "docstore.db",
		LogLevel: slog.LevelInfo,
	}
	setString(&cfg.Port, getenv("PORT"))
	setString(&cfg.Path, getenv("DOCSTORE_PATH"))
	setString(&cfg.Secret, getenv("DOCSTORE_SECRET"))
	if err := setLevel(&cfg.LogLevel, "LOG_LEVEL", getenv("LOG_LEVEL")); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewLogger は設定に従った構造化ロガーを生成する。
func (c *DocstoreConfig) NewLogger(w io.Writer) *slog.Logger {
	return NewLogger(w, "text", c.LogLevel)
}
