package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/shopgate/internal/account"
	"github.com/nao1215/shopgate/internal/catalog"
	"github.com/nao1215/shopgate/internal/config"
	"github.com/nao1215/shopgate/internal/store"
	"github.com/nao1215/shopgate/pkg/credential"
	"github.com/nao1215/shopgate/pkg/httpclient"
	"github.com/nao1215/shopgate/pkg/middleware"
	"github.com/nao1215/shopgate/pkg/validation"
)

const (
	// usersCollection はユーザーを保持するコレクション名。
	usersCollection = "user"
	// productsCollection は商品を保持するコレクション名。
	productsCollection = "products"
	// shutdownTimeout はグレースフルシャットダウンの待ち時間。
	shutdownTimeout = 10 * time.Second
)

// Server はゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// accounts はユーザーアカウントの操作。
	accounts *account.Service
	// products は商品カタログの操作。
	products *catalog.Service
	// tokens はBearerトークンの発行と検証。
	tokens *middleware.TokenIssuer
	// validator はリクエストボディのスキーマ検証器。
	validator *validation.Validator
	// logger は構造化ロガー。
	logger *slog.Logger
}

// NewServer は設定から依存関係を組み立ててゲートウェイサーバーを生成する。
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	codec, err := credential.NewCodec(cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("パスワードコーデックの初期化に失敗: %w", err)
	}
	tokens := middleware.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	client := store.New(cfg.StoreURL,
		httpclient.WithTimeout(cfg.StoreTimeout),
		httpclient.WithQueryParam("auth", cfg.StoreAuth),
	)

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(cfg.CORSOrigins))

	s := &Server{
		router:    router,
		port:      cfg.Port,
		accounts:  account.NewService(client.Collection(usersCollection), codec, tokens, logger),
		products:  catalog.NewService(client.Collection(productsCollection), logger),
		tokens:    tokens,
		validator: validation.New(),
		logger:    logger,
	}
	s.setupRoutes()

	return s, nil
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
		s.logger.Info("ゲートウェイを起動します", "addr", srv.Addr)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("サーバーの停止に失敗: %w", err)
	}
	s.logger.Info("ゲートウェイを停止しました")
	return nil
}

// setupRoutes はAPIルーティングを設定する。
// 保護されたルートでは認証をスキーマ検証より先に行う。
func (s *Server) setupRoutes() {
	requireAuth := middleware.Auth(s.tokens)

	auth := s.router.Group("/auth")
	{
		auth.POST("/register", validateBody[registerRequest](s), s.handleRegister())
		auth.POST("/login", validateBody[loginRequest](s), s.handleLogin())
		auth.GET("/profile", requireAuth, s.handleGetProfile())
		auth.PUT("/profile", requireAuth, validateBody[updateProfileRequest](s), s.handleUpdateProfile())
	}

	product := s.router.Group("/product")
	{
		product.GET("", s.handleListProducts())
		product.GET("/:id", s.handleGetProduct())
		product.POST("", requireAuth, validateBody[productRequest](s), s.handleCreateProduct())
		product.POST("/bulk", requireAuth, validateEach[productRequest](s), s.handleCreateProducts())
		product.PUT("/:id", requireAuth, validateBody[productRequest](s), s.handleUpdateProduct())
		product.DELETE("/:id", requireAuth, s.handleDeleteProduct())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "URL Not Found",
			"message": "The requested URL was not found",
		})
	})
}

// requestContext はストア呼び出しにリクエストIDを引き継ぐコンテキストを返す。
func requestContext(c *gin.Context) context.Context {
	return httpclient.WithRequestID(c.Request.Context(), middleware.GetRequestID(c))
}
