package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/shopgate/internal/account"
	"github.com/nao1215/shopgate/internal/catalog"
	"github.com/nao1215/shopgate/internal/store"
	"github.com/nao1215/shopgate/pkg/middleware"
	"github.com/nao1215/shopgate/pkg/validation"
)

// errorResponse はエラー応答のボディ。
type errorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Details []validation.Violation `json:"details,omitempty"`
}

// classify はエラーをステータスコードと応答ボディに対応付ける。
func classify(err error) (int, errorResponse) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorResponse{
			Error:   "Validation Error",
			Message: "Request payload is invalid",
			Details: verr.Violations,
		}
	case errors.Is(err, validation.ErrNotArray):
		return http.StatusBadRequest, errorResponse{Error: "Bad Request", Message: "Expected an array of products"}
	case errors.Is(err, validation.ErrMalformed):
		return http.StatusBadRequest, errorResponse{Error: "Bad Request", Message: "Request body is not valid JSON"}
	case errors.Is(err, account.ErrDuplicateEmail):
		return http.StatusBadRequest, errorResponse{Error: "Registration Failed", Message: "Email already registered"}
	case errors.Is(err, account.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorResponse{Error: "Authentication Failed", Message: "Invalid email or password"}
	case errors.Is(err, account.ErrEmailInUse):
		return http.StatusBadRequest, errorResponse{Error: "Update Failed", Message: "Email already in use"}
	case errors.Is(err, account.ErrIncorrectPassword):
		return http.StatusUnauthorized, errorResponse{Error: "Update Failed", Message: "Current password is incorrect"}
	case errors.Is(err, account.ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: "Not Found", Message: "User not found"}
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: "Not Found", Message: "Product not found"}
	case errors.Is(err, store.ErrUpstream):
		return http.StatusBadGateway, errorResponse{Error: "Upstream Error", Message: "The document store is unavailable"}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "Internal Server Error", Message: "An unexpected error occurred"}
	}
}

// abort はエラーを応答に変換して処理を打ち切る。
// 5xxの原因はログにだけ残し、クライアントには汎用的なメッセージを返す。
func (s *Server) abort(c *gin.Context, err error) {
	status, body := classify(err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(c.Request.Context(), "リクエストの処理に失敗",
			"error", err,
			"path", c.FullPath(),
			"request_id", middleware.GetRequestID(c),
		)
	}
	c.AbortWithStatusJSON(status, body)
}
