// Package config はゲートウェイとローカルドキュメントストアの設定を扱う。
//
// 設定はデフォルト値、環境変数、コマンドラインフラグの順に上書きされ、
// 起動時に1度だけ構築して各コンポーネントに注入する。
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// devSecret は開発環境でのみ許可する署名用秘密鍵。
const devSecret = "dev-secret-key"

// Config はゲートウェイの実行時設定。
type Config struct {
	// Port はリッスンポート。
	Port string
	// StoreURL はリモートドキュメントストアのベースURL。
	StoreURL string
	// StoreAuth はストア呼び出しに auth クエリパラメータとして付与する資格情報。
	StoreAuth string
	// StoreTimeout はストア呼び出し1回あたりのタイムアウト。
	StoreTimeout time.Duration
	// JWTSecret はトークン署名用の秘密鍵。
	JWTSecret string
	// TokenTTL はトークンの有効期間。
	TokenTTL time.Duration
	// CORSOrigins はクロスオリジンを許可するオリジン。"*" はすべて。
	CORSOrigins []string
	// BcryptCost はパスワードハッシュのコスト。
	BcryptCost int
	// LogLevel はログレベル。
	LogLevel slog.Level
	// LogFormat はログ形式（text または json）。
	LogFormat string
	// Env は実行環境（development, production など）。
	Env string
}

// Getenv は環境変数を取得する関数。os.Getenv を渡す。
type Getenv func(key string) string

// Load はデフォルト値に環境変数とフラグを適用して設定を構築し、検証する。
func Load(args []string, getenv Getenv) (*Config, error) {
	var errs []error
	cfg := &Config{
		Port:         "5000",
		StoreTimeout: 30 * time.Second,
		TokenTTL:     24 * time.Hour,
		CORSOrigins:  []string{"*"},
		BcryptCost:   10,
		LogLevel:     slog.LevelInfo,
		LogFormat:    "text",
		Env:          "production",
	}

	setString(&cfg.Port, getenv("PORT"))
	setString(&cfg.StoreURL, getenv("FIREBASE_URL"))
	setString(&cfg.StoreURL, getenv("STORE_URL"))
	setString(&cfg.StoreAuth, getenv("STORE_AUTH"))
	setString(&cfg.JWTSecret, getenv("JWT_SECRET"))
	setString(&cfg.LogFormat, getenv("LOG_FORMAT"))
	setString(&cfg.Env, getenv("APP_ENV"))
	if v := getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	errs = append(errs,
		setDuration(&cfg.StoreTimeout, "STORE_TIMEOUT", getenv("STORE_TIMEOUT")),
		setDuration(&cfg.TokenTTL, "TOKEN_TTL", getenv("TOKEN_TTL")),
		setInt(&cfg.BcryptCost, "BCRYPT_COST", getenv("BCRYPT_COST")),
		setLevel(&cfg.LogLevel, "LOG_LEVEL", getenv("LOG_LEVEL")),
	)

	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.Port, "port", cfg.Port, "listen port")
	fs.StringVar(&cfg.StoreURL, "store-url", cfg.StoreURL, "document store base URL")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "token lifetime")
	fs.IntVar(&cfg.BcryptCost, "bcrypt-cost", cfg.BcryptCost, "bcrypt cost")
	logLevel := fs.String("log-level", cfg.LogLevel.String(), "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("フラグの解析に失敗: %w", err)
	}
	errs = append(errs, setLevel(&cfg.LogLevel, "-log-level", *logLevel))

	if cfg.JWTSecret == "" && cfg.Env == "development" {
		cfg.JWTSecret = devSecret
	}

	errs = append(errs, cfg.Validate())
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は設定の不備をすべてまとめて返す。
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORTが空です"))
	} else if n, err := strconv.Atoi(c.Port); err != nil || n < 0 || n > 65535 {
		errs = append(errs, fmt.Errorf("PORTが不正です: %q", c.Port))
	}
	if c.StoreURL == "" {
		errs = append(errs, errors.New("STORE_URL（またはFIREBASE_URL）が必要です"))
	} else if u, err := url.Parse(c.StoreURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("STORE_URLが不正です: %q", c.StoreURL))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRETが必要です"))
	} else if c.JWTSecret == devSecret && c.Env != "development" {
		errs = append(errs, errors.New("開発用のJWT_SECRETは開発環境以外では使用できません"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("TOKEN_TTLは正の値である必要があります: %s", c.TokenTTL))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, fmt.Errorf("STORE_TIMEOUTは正の値である必要があります: %s", c.StoreTimeout))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COSTは4〜31である必要があります: %d", c.BcryptCost))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMATはtextまたはjsonである必要があります: %q", c.LogFormat))
	}
	if len(c.CORSOrigins) == 0 {
		errs = append(errs, errors.New("CORS_ORIGINSが空です"))
	}
	return errors.Join(errs...)
}

// DevelopmentSecret は開発用の秘密鍵が使われているかを返す。
func (c *Config) DevelopmentSecret() bool {
	return c.JWTSecret == devSecret
}

// NewLogger は設定に従った構造化ロガーを生成する。
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	return NewLogger(w, c.LogFormat, c.LogLevel)
}

// NewLogger は形式とレベルを指定して構造化ロガーを生成する。
func NewLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// setString は値が空でなければ上書きする。
func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// setDuration は値が空でなければ期間として解析して上書きする。
func setDuration(dst *time.Duration, key, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%sが不正です: %w", key, err)
	}
	*dst = d
	return nil
}

// setInt は値が空でなければ整数として解析して上書きする。
func setInt(dst *int, key, v string) error {
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%sが不正です: %w", key, err)
	}
	*dst = n
	return nil
}

// setLevel は値が空でなければログレベルとして解析して上書きする。
func setLevel(dst *slog.Level, key, v string) error {
	if v == "" {
		return nil
	}
	if err := dst.UnmarshalText([]byte(v)); err != nil {
		return fmt.Errorf("%sが不正です: %w", key, err)
	}
	return nil
}

// splitList はカンマ区切りの値を分割し、空要素を除く。
func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
