package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL はトークンのデフォルト有効期間。
const DefaultTokenTTL = 24 * time.Hour

var (
	// ErrMissingToken はBearerトークンが提示されていないことを表す。
	ErrMissingToken = errors.New("アクセストークンが必要です")
	// ErrInvalidToken は署名不正または期限切れのトークンであることを表す。
	ErrInvalidToken = errors.New("トークンが無効または期限切れです")
)

// context keys
const (
	contextKeyClaims = "claims"
	contextKeyUserID = "user_id"
)

// Claims はトークンのクレーム（ペイロード）を表す。
type Claims struct {
	jwt.RegisteredClaims
	// UserID はストアが割り当てたユーザーの識別子。
	UserID string `json:"userId"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
}

// TokenIssuer はプロセス共通の秘密鍵でトークンを発行・検証する。
// トークンはステートレスで、有効期限前に失効させる手段はない。
type TokenIssuer struct {
	// secret はHS256署名用の秘密鍵。
	secret []byte
	// ttl は発行から失効までの期間。
	ttl time.Duration
	// now は現在時刻を返す。テストで差し替える。
	now func() time.Time
}

// NewTokenIssuer は新しいTokenIssuerを生成する。ttlが0以下の場合は24時間を使う。
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock は時刻取得関数を差し替えたコピーを返す。
func (i *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	cp := *i
	cp.now = now
	return &cp
}

// Issue はユーザー情報からトークンを生成する。
func (i *TokenIssuer) Issue(userID, email string) (string, error) {
	issuedAt := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
		UserID: userID,
		Email:  email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Verify はトークンの署名と有効期限を検証し、クレームを返す。
func (i *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyHeader はAuthorizationヘッダーの値からBearerトークンを取り出して検証する。
// "Bearer " で始まらない場合は ErrMissingToken、始まるがトークンが空や不正な場合は ErrInvalidToken を返す。
// トークンは接頭辞の後ろから次の空白までとする。
func (i *TokenIssuer) VerifyHeader(authHeader string) (*Claims, error) {
	rest, found := strings.CutPrefix(authHeader, "Bearer ")
	if !found {
		return nil, ErrMissingToken
	}
	tokenString, _, _ := strings.Cut(rest, " ")
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	return i.Verify(tokenString)
}

// Auth はBearerトークンを検証するGinミドルウェアを返す。
// トークンがない場合は401、無効または期限切れの場合は403で処理を打ち切る。
// 検証に成功した場合、コンテキストにクレームとユーザーIDを設定する。
func Auth(issuer *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := issuer.VerifyHeader(c.GetHeader("Authorization"))
		switch {
		case errors.Is(err, ErrMissingToken):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "Access token is required",
			})
			return
		case err != nil:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Forbidden",
				"message": "Invalid or expired token",
			})
			return
		}

		c.Set(contextKeyClaims, claims)
		c.Set(contextKeyUserID, claims.UserID)
		c.Next()
	}
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// Authミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	return c.GetString(contextKeyUserID)
}

// GetClaims はGinコンテキストからクレームを取得する。
func GetClaims(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(contextKeyClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}
