package docstore

import (
	"bytes"
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/shopgate/pkg/middleware"
)

// maxBodySize はリクエストボディの上限。
const maxBodySize = 10 << 20

// forbiddenKeyChars はキーに使用できない文字。
const forbiddenKeyChars = ".$#[]/"

var nullBody = []byte("null")

// Server はローカルドキュメントストアのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// repo はドキュメントの永続化先。
	repo *Repository
	// logger は構造化ロガー。
	logger *slog.Logger
	// secret は auth クエリパラメータと照合する秘密鍵。空なら照合しない。
	secret string
	// newID はPOST時の識別子を生成する。
	newID func() (string, error)
}

// Option はサーバーの設定を変更する関数。
type Option func(*Server)

// WithSecret は auth クエリパラメータによる認証を有効にする。
func WithSecret(secret string) Option {
	return func(s *Server) {
		s.secret = secret
	}
}

// WithIDGenerator はPOST時の識別子生成を差し替える。
func WithIDGenerator(fn func() (string, error)) Option {
	return func(s *Server) {
		s.newID = fn
	}
}

// NewServer は新しいローカルドキュメントストアサーバーを生成する。
func NewServer(port string, db *sql.DB, logger *slog.Logger, opts ...Option) *Server {
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))

	s := &Server{
		router: router,
		port:   port,
		repo:   NewRepository(db),
		logger: logger,
		newID:  newPushID,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctx がキャンセルされたらグレースフルに停止する。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("ドキュメントストアを起動します", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("サーバーの停止に失敗: %w", err)
	}
	s.logger.Info("ドキュメントストアを停止しました")
	return nil
}

// setupRoutes はルーティングを設定する。
func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "docstore"})
	})

	db := s.router.Group("/db")
	db.Use(s.authorize())
	{
		db.GET("/*path", s.handleGet())
		db.POST("/*path", s.handlePost())
		db.PUT("/*path", s.handlePut())
		db.DELETE("/*path", s.handleDelete())
	}
}

// authorize は秘密鍵が設定されていれば auth クエリパラメータを照合する。
func (s *Server) authorize() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.secret == "" {
			c.Next()
			return
		}
		given := c.Query("auth")
		if subtle.ConstantTimeCompare([]byte(given), []byte(s.secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Permission denied"})
			return
		}
		c.Next()
	}
}

// location はURLパスが指すコレクションとドキュメント。
type location struct {
	collection string
	// id が空ならコレクション全体を指す。
	id string
}

// parseLocation は "/<collection>.json" または "/<collection>/<id>.json" を解析する。
func parseLocation(raw string) (location, error) {
	p, ok := strings.CutSuffix(strings.TrimPrefix(raw, "/"), ".json")
	if !ok {
		return location{}, errors.New("path must end with .json")
	}
	parts := strings.Split(p, "/")
	if len(parts) > 2 {
		return location{}, errors.New("nested paths are not supported")
	}
	for _, part := range parts {
		if part == "" || strings.ContainsAny(part, forbiddenKeyChars) {
			return location{}, fmt.Errorf("invalid key %q", part)
		}
	}
	loc := location{collection: parts[0]}
	if len(parts) == 2 {
		loc.id = parts[1]
	}
	return loc, nil
}

// handleGet はコレクションまたはドキュメントの取得を処理するハンドラを返す。
func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		loc, ok := s.location(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()

		if loc.id != "" {
			doc, found, err := s.repo.Get(ctx, loc.collection, loc.id)
			if err != nil {
				s.internalError(c, err)
				return
			}
			if !found {
				c.Data(http.StatusOK, "application/json", nullBody)
				return
			}
			c.Data(http.StatusOK, "application/json", doc)
			return
		}

		docs, err := s.repo.List(ctx, loc.collection)
		if err != nil {
			s.internalError(c, err)
			return
		}
		if len(docs) == 0 {
			c.Data(http.StatusOK, "application/json", nullBody)
			return
		}
		body, err := json.Marshal(docs)
		if err != nil {
			s.internalError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/json", body)
	}
}

// handlePost はドキュメントの追加を処理するハンドラを返す。
func (s *Server) handlePost() gin.HandlerFunc {
	return func(c *gin.Context) {
		loc, ok := s.location(c)
		if !ok {
			return
		}
		if loc.id != "" {
			badRequest(c, "push is only supported on collections")
			return
		}
		body, ok := readDocument(c)
		if !ok {
			return
		}
		if bytes.Equal(body, nullBody) {
			badRequest(c, "cannot push null")
			return
		}

		id, err := s.newID()
		if err != nil {
			s.internalError(c, err)
			return
		}
		if err := s.repo.Put(c.Request.Context(), loc.collection, id, body); err != nil {
			s.internalError(c, err)
			return
		}
		s.logger.Debug("ドキュメントを追加しました", "collection", loc.collection, "id", id)
		c.JSON(http.StatusOK, gin.H{"name": id})
	}
}

// handlePut はドキュメントまたはコレクションの置き換えを処理するハンドラを返す。
// null を書き込むと削除になる。
func (s *Server) handlePut() gin.HandlerFunc {
	return func(c *gin.Context) {
		loc, ok := s.location(c)
		if !ok {
			return
		}
		body, ok := readDocument(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()

		if loc.id == "" {
			docs, err := collectionFromBody(body)
			if err != nil {
				badRequest(c, err.Error())
				return
			}
			if err := s.repo.ReplaceCollection(ctx, loc.collection, docs); err != nil {
				s.internalError(c, err)
				return
			}
			c.Data(http.StatusOK, "application/json", body)
			return
		}

		if bytes.Equal(body, nullBody) {
			if err := s.repo.Delete(ctx, loc.collection, loc.id); err != nil {
				s.internalError(c, err)
				return
			}
			c.Data(http.StatusOK, "application/json", nullBody)
			return
		}
		if err := s.repo.Put(ctx, loc.collection, loc.id, body); err != nil {
			s.internalError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/json", body)
	}
}

// handleDelete はドキュメントまたはコレクションの削除を処理するハンドラを返す。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		loc, ok := s.location(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()

		var err error
		if loc.id == "" {
			err = s.repo.ReplaceCollection(ctx, loc.collection, nil)
		} else {
			err = s.repo.Delete(ctx, loc.collection, loc.id)
		}
		if err != nil {
			s.internalError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/json", nullBody)
	}
}

// location はリクエストパスを解析し、不正なら400を返す。
func (s *Server) location(c *gin.Context) (location, bool) {
	loc, err := parseLocation(c.Param("path"))
	if err != nil {
		badRequest(c, err.Error())
		return location{}, false
	}
	return loc, true
}

// internalError はデータベースエラーを記録して500を返す。
func (s *Server) internalError(c *gin.Context, err error) {
	s.logger.ErrorContext(c.Request.Context(), "ドキュメントストアの処理に失敗",
		"error", err, "request_id", middleware.GetRequestID(c))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
}

// readDocument はリクエストボディを読み込み、空白を詰めたJSONとして返す。
func readDocument(c *gin.Context) (json.RawMessage, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize))
	if err != nil {
		badRequest(c, "request body is too large")
		return nil, false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		badRequest(c, "Invalid data; couldn't parse JSON object, array, or value.")
		return nil, false
	}
	return buf.Bytes(), true
}

// collectionFromBody はコレクション全体の書き込み内容をドキュメントのマップに変換する。
// 配列はインデックスをキーとし、null の要素は書き込まない。
func collectionFromBody(body json.RawMessage) (map[string]json.RawMessage, error) {
	if bytes.Equal(body, nullBody) {
		return nil, nil
	}
	docs := make(map[string]json.RawMessage)
	switch body[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, err
		}
		for i, item := range items {
			docs[strconv.Itoa(i)] = item
		}
	case '{':
		if err := json.Unmarshal(body, &docs); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("collection must be an object or an array")
	}
	for id, doc := range docs {
		if strings.ContainsAny(id, forbiddenKeyChars) || id == "" {
			return nil, fmt.Errorf("invalid key %q", id)
		}
		if bytes.Equal(doc, nullBody) {
			delete(docs, id)
		}
	}
	return docs, nil
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

// newPushID は時刻順に並ぶ識別子を生成する。
func newPushID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("識別子の生成に失敗: %w", err)
	}
	return id.String(), nil
}
