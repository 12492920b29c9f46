package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nao1215/shopgate/internal/store"
	"github.com/nao1215/shopgate/pkg/credential"
)

var (
	// ErrDuplicateEmail は登録しようとしたメールアドレスが既に使われていることを表す。
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidCredentials はメールアドレスまたはパスワードが正しくないことを表す。
	// 未登録のメールアドレスとパスワード誤りを区別しない。
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrNotFound はユーザーが存在しないことを表す。
	ErrNotFound = errors.New("user not found")
	// ErrEmailInUse は変更先のメールアドレスが既に使われていることを表す。
	ErrEmailInUse = errors.New("email already in use")
	// ErrIncorrectPassword は現在のパスワードが一致しないことを表す。
	ErrIncorrectPassword = errors.New("current password is incorrect")
)

// Collection はユーザーコレクションに対するストア操作。
type Collection interface {
	List(ctx context.Context) (map[string]json.RawMessage, error)
	Get(ctx context.Context, id string) (json.RawMessage, error)
	Push(ctx context.Context, doc any) (string, error)
	Put(ctx context.Context, id string, doc any) (json.RawMessage, error)
}

// PasswordCodec はパスワードのハッシュ化と照合を行う。
type PasswordCodec interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, stored string) bool
	Detect(stored string) credential.Format
}

// TokenIssuer はBearerトークンを発行する。
type TokenIssuer interface {
	Issue(userID, email string) (string, error)
}

// unknownUserPassword は未登録のメールアドレスでのログイン時に照合するハッシュの元になる値。
const unknownUserPassword = "unknown-user-placeholder"

// Service はユーザーアカウントの操作を提供する。
type Service struct {
	users  Collection
	codec  PasswordCodec
	tokens TokenIssuer
	logger *slog.Logger
	now    func() time.Time
	// dummyHash は未登録のメールアドレスでも照合を1回行うためのハッシュを返す。
	dummyHash func() string
}

// NewService は新しいServiceを生成する。
func NewService(users Collection, codec PasswordCodec, tokens TokenIssuer, logger *slog.Logger) *Service {
	return &Service{
		users:  users,
		codec:  codec,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
		dummyHash: sync.OnceValue(func() string {
			hash, err := codec.Hash(unknownUserPassword)
			if err != nil {
				logger.Error("照合用ハッシュの生成に失敗しました", "error", err)
				return unknownUserPassword
			}
			return hash
		}),
	}
}

// Session は認証に成功した結果。
type Session struct {
	// Token は発行されたBearerトークン。
	Token string
	// User はパスワードを除いたユーザー情報。
	User Profile
}

// RegisterInput は登録の入力。
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// UpdateInput はプロフィール更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Name            *string
	Email           *string
	CurrentPassword *string
	NewPassword     *string
}

// Register は新しいユーザーを登録し、トークンを発行する。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	existing, err := s.findByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateEmail
	}

	hash, err := s.codec.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		Email:     in.Email,
		Name:      in.Name,
		Password:  hash,
		CreatedAt: s.now().UTC().Format(createdAtLayout),
	}
	id, err := s.users.Push(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの作成に失敗: %w", err)
	}
	user.ID = id

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "ユーザーを登録しました", "user_id", user.ID)
	return &Session{Token: token, User: user.Profile()}, nil
}

// Login はメールアドレスとパスワードを照合し、トークンを発行する。
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// 登録済みの場合と同じだけ照合の時間をかける
		s.codec.Verify(password, s.dummyHash())
		s.logger.WarnContext(ctx, "ログイン失敗: 未登録のメールアドレス", "email", email)
		return nil, ErrInvalidCredentials
	}

	if s.codec.Detect(user.Password) == credential.FormatLegacyPlaintext {
		s.logger.WarnContext(ctx, "平文で保存されたパスワードを照合します", "user_id", user.ID)
	}
	if !s.codec.Verify(password, user.Password) {
		s.logger.WarnContext(ctx, "ログイン失敗: パスワード不一致", "email", email)
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "ログインしました", "user_id", user.ID)
	return &Session{Token: token, User: user.Profile()}, nil
}

// GetProfile はユーザー情報を返す。
func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.get(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := user.Profile()
	return &p, nil
}

// UpdateProfile は名前・メールアドレス・パスワードを更新し、レコード全体を書き戻す。
// パスワードは現在のパスワードが一致した場合にのみ変更する。
func (s *Service) UpdateProfile(ctx context.Context, userID string, in UpdateInput) (*Profile, error) {
	user, err := s.get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if email := deref(in.Email); email != "" && email != user.Email {
		other, err := s.findByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if other != nil {
			return nil, ErrEmailInUse
		}
		user.Email = email
	}

	if name := deref(in.Name); name != "" {
		user.Name = name
	}

	current, next := deref(in.CurrentPassword), deref(in.NewPassword)
	if current != "" && next != "" {
		if !s.codec.Verify(current, user.Password) {
			return nil, ErrIncorrectPassword
		}
		hash, err := s.codec.Hash(next)
		if err != nil {
			return nil, err
		}
		user.Password = hash
	}

	if _, err := s.users.Put(ctx, userID, user); err != nil {
		return nil, fmt.Errorf("ユーザーの更新に失敗: %w", err)
	}

	p := user.Profile()
	return &p, nil
}

// get は識別子でユーザーを取得する。
func (s *Service) get(ctx context.Context, userID string) (*User, error) {
	raw, err := s.users.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}

	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, err
	}
	user.ID = userID
	return &user, nil
}

// findByEmail は全ユーザーを走査してメールアドレスが一致するユーザーを返す。
// 見つからない場合はnilを返す。
func (s *Service) findByEmail(ctx context.Context, email string) (*User, error) {
	docs, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗: %w", err)
	}

	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		var user User
		if err := json.Unmarshal(docs[id], &user); err != nil {
			s.logger.WarnContext(ctx, "読み取れないユーザードキュメントをスキップします", "user_id", id, "error", err)
			continue
		}
		if user.Email == email {
			user.ID = id
			return &user, nil
		}
	}
	return nil, nil
}

// deref はnilを空文字として文字列ポインタを参照する。
func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
