package credential

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost はbcryptのデフォルトコスト。
const DefaultCost = 10

// ErrInvalidCost はbcryptコストが許容範囲外であることを表す。
var ErrInvalidCost = errors.New("bcryptコストが範囲外です")

// Format は保存済みクレデンシャルの形式を表す。
type Format string

const (
	// FormatBcrypt はbcryptでハッシュ化された形式。
	FormatBcrypt Format = "bcrypt"
	// FormatLegacyPlaintext はハッシュ導入前の平文形式。
	FormatLegacyPlaintext Format = "legacy-plaintext"
)

// Scheme は特定形式のクレデンシャルを照合する戦略。
type Scheme interface {
	// Format は戦略が扱う形式を返す。
	Format() Format
	// Matches は保存値がこの形式かどうかを返す。
	Matches(stored string) bool
	// Verify は平文パスワードが保存値と一致するかを返す。
	Verify(plaintext, stored string) bool
}

// Codec はパスワードのハッシュ化と照合を行う。
type Codec struct {
	// cost はbcryptのコスト。
	cost int
	// schemes は照合時に先頭から試す戦略の一覧。最後の要素はフォールバック。
	schemes []Scheme
}

// NewCodec は指定コストのCodecを生成する。
func NewCodec(cost int) (*Codec, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCost, cost)
	}
	return &Codec{
		cost:    cost,
		schemes: []Scheme{bcryptScheme{}, plaintextScheme{}},
	}, nil
}

// Hash はランダムなソルト付きでパスワードをハッシュ化する。
func (c *Codec) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), c.cost)
	if err != nil {
		return "", fmt.Errorf("パスワードのハッシュ化に失敗: %w", err)
	}
	return string(hash), nil
}

// Verify は平文パスワードが保存値と一致するかを返す。
// 不一致の理由（形式違い、ハッシュ不一致、平文不一致）は呼び出し元に区別させない。
func (c *Codec) Verify(plaintext, stored string) bool {
	return c.schemeFor(stored).Verify(plaintext, stored)
}

// Detect は保存値の形式を返す。
func (c *Codec) Detect(stored string) Format {
	return c.schemeFor(stored).Format()
}

// schemeFor は保存値に対応する戦略を返す。
func (c *Codec) schemeFor(stored string) Scheme {
	for _, s := range c.schemes[:len(c.schemes)-1] {
		if s.Matches(stored) {
			return s
		}
	}
	return c.schemes[len(c.schemes)-1]
}

// bcryptScheme は "$2a$" などのbcrypt識別子で始まる保存値を扱う。
type bcryptScheme struct{}

func (bcryptScheme) Format() Format { return FormatBcrypt }

func (bcryptScheme) Matches(stored string) bool {
	return strings.HasPrefix(stored, "$2")
}

func (bcryptScheme) Verify(plaintext, stored string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(plaintext)) == nil
}

// plaintextScheme は移行前の平文保存値を直接比較する。
type plaintextScheme struct{}

func (plaintextScheme) Format() Format { return FormatLegacyPlaintext }

func (plaintextScheme) Matches(string) bool { return true }

func (plaintextScheme) Verify(plaintext, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(plaintext), []byte(stored)) == 1
}
