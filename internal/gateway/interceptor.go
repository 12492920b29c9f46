package gateway

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/shopgate/pkg/validation"
)

// payloadKey は検証済みのリクエストボディを格納するコンテキストキー。
const payloadKey = "payload"

// validateBody はボディをTとしてデコード・検証するGinミドルウェアを返す。
// 違反があればすべてまとめて400を返し、後続のハンドラには進まない。
func validateBody[T any](s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := c.GetRawData()
		if err != nil {
			s.abort(c, fmt.Errorf("リクエストボディの読み込みに失敗: %w", err))
			return
		}
		req := new(T)
		if err := s.validator.Decode(data, req); err != nil {
			s.abort(c, err)
			return
		}
		c.Set(payloadKey, req)
		c.Next()
	}
}

// validateEach はボディをTの配列としてデコード・検証するGinミドルウェアを返す。
func validateEach[T any](s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := c.GetRawData()
		if err != nil {
			s.abort(c, fmt.Errorf("リクエストボディの読み込みに失敗: %w", err))
			return
		}
		items, err := validation.DecodeEach[T](s.validator, data)
		if err != nil {
			s.abort(c, err)
			return
		}
		c.Set(payloadKey, items)
		c.Next()
	}
}

// payload は validateBody が格納したリクエストボディを返す。
func payload[T any](c *gin.Context) *T {
	v, _ := c.Get(payloadKey)
	req, _ := v.(*T)
	return req
}

// payloads は validateEach が格納したリクエストボディを返す。
func payloads[T any](c *gin.Context) []T {
	v, _ := c.Get(payloadKey)
	items, _ := v.([]T)
	return items
}
