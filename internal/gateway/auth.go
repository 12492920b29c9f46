package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/shopgate/internal/account"
	"github.com/nao1215/shopgate/pkg/middleware"
)

// sessionResponse は登録・ログインの応答。
type sessionResponse struct {
	Message string          `json:"message"`
	Token   string          `json:"token"`
	User    account.Profile `json:"user"`
}

// handleRegister はユーザー登録を処理するハンドラを返す。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		req := payload[registerRequest](c)
		session, err := s.accounts.Register(requestContext(c), account.RegisterInput{
			Email:    req.Email,
			Password: req.Password,
			Name:     req.Name,
		})
		if err != nil {
			s.abort(c, err)
			return
		}
		c.JSON(http.StatusCreated, sessionResponse{
			Message: "User registered successfully",
			Token:   session.Token,
			User:    session.User,
		})
	}
}

// handleLogin はログインを処理するハンドラを返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		req := payload[loginRequest](c)
		session, err := s.accounts.Login(requestContext(c), req.Email, req.Password)
		if err != nil {
			s.abort(c, err)
			return
		}
		c.JSON(http.StatusOK, sessionResponse{
			Message: "Login successful",
			Token:   session.Token,
			User:    session.User,
		})
	}
}

// handleGetProfile は認証済みユーザーのプロフィール取得を処理するハンドラを返す。
func (s *Server) handleGetProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		profile, err := s.accounts.GetProfile(requestContext(c), middleware.GetUserID(c))
		if err != nil {
			s.abort(c, err)
			return
		}
		c.JSON(http.StatusOK, profile)
	}
}

// handleUpdateProfile は認証済みユーザーのプロフィール更新を処理するハンドラを返す。
func (s *Server) handleUpdateProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		req := payload[updateProfileRequest](c)
		profile, err := s.accounts.UpdateProfile(requestContext(c), middleware.GetUserID(c), account.UpdateInput{
			Name:            req.Name,
			Email:           req.Email,
			CurrentPassword: req.CurrentPassword,
			NewPassword:     req.NewPassword,
		})
		if err != nil {
			s.abort(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "Profile updated successfully",
			"user":    profile,
		})
	}
}
