// Package shopctl はゲートウェイを操作する運用向けCLIのコマンドを提供する。
package shopctl

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/shopgate/pkg/httpclient"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// app はサブコマンド間で共有する設定。
type app struct {
	serverURL string
	tokenFile string
}

// NewRootCmd はルートコマンドを生成する。
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "shopctl",
		Short:         "Command line client for the shop gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.serverURL, "server", envOr("SHOPCTL_SERVER", "http://localhost:5000"), "gateway base URL")
	root.PersistentFlags().StringVar(&a.tokenFile, "token-file", defaultTokenFile(), "file where the access token is stored")

	root.AddCommand(newRegisterCmd(a))
	root.AddCommand(newLoginCmd(a))
	root.AddCommand(newProfileCmd(a))
	root.AddCommand(newProductsCmd(a))
	root.AddCommand(newSeedCmd(a))
	return root
}

// client はゲートウェイへのHTTPクライアントを返す。
// authenticated が真なら保存済みのトークンを付与する。
func (a *app) client(authenticated bool) (*httpclient.Client, error) {
	if !authenticated {
		return httpclient.New(a.serverURL), nil
	}
	token, err := a.loadToken()
	if err != nil {
		return nil, err
	}
	return httpclient.New(a.serverURL, httpclient.WithBearerToken(token)), nil
}

func (a *app) saveToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(a.tokenFile), 0o700); err != nil {
		return fmt.Errorf("トークンの保存先を作成できません: %w", err)
	}
	return os.WriteFile(a.tokenFile, []byte(token), 0o600)
}

func (a *app) loadToken() (string, error) {
	b, err := os.ReadFile(a.tokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return "", errors.New("not logged in: run `shopctl login` first")
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// promptPassword はパスワードを読み取る。
// 標準入力が端末ならエコーせずに読み、そうでなければ1行を読む。
func promptPassword(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		pass, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("パスワードの読み取りに失敗: %w", err)
		}
		return string(pass), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("パスワードの読み取りに失敗: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// describe はゲートウェイのエラー応答を読みやすいメッセージに変換する。
func describe(err error) error {
	var se *httpclient.StatusError
	if !errors.As(err, &se) {
		return err
	}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Details []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"details"`
	}
	if json.Unmarshal([]byte(se.Body), &body) != nil || body.Error == "" {
		return err
	}
	msg := body.Error
	if body.Message != "" {
		msg += ": " + body.Message
	}
	for _, d := range body.Details {
		msg += "\n  - " + d.Message
	}
	return fmt.Errorf("%s (HTTP %d)", msg, se.StatusCode)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".shopctl_token"
	}
	return filepath.Join(dir, "shopctl", "token")
}
