package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/shopgate/internal/catalog"
)

// handleListProducts は商品一覧の取得を処理するハンドラを返す。
func (s *Server) handleListProducts() gin.HandlerFunc {
	return func(c *gin.Context) {
		products, err := s.products.List(requestContext(c))
		if err != nil {
			s.abort(c, err)
			return
		}
		c.JSON(http.StatusOK, products)
	}
}

// handleGetProduct は商品の取得を処理するハンドラを返す。
func (s *Server) handleGetProduct() gin.HandlerFunc {
	return func(c *gin.Context) {
		product, err := s.products.Get(requestContext(c), c.Param("id"))
		if err != nil {
			s.abort(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

// handleCreateProduct は商品の作成を処理するハンドラを返す。
func (s *Server) handleCreateProduct() gin.HandlerFunc {
	return func(c *gin.Context) {
		product, err := payload[productRequest](c).toProduct()
		if err != nil {
			s.abort(c, err)
			return
		}
		created, err := s.products.Create(requestContext(c), product)
		if err != nil {
			s.abort(c, err)
			return
		}
		c.JSON(http.StatusCreated, created)
	}
}

// handleCreateProducts は商品の一括作成を処理するハンドラを返す。
// 途中で失敗しても作成済みの商品は残る。
func (s *Server) handleCreateProducts() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqs := payloads[productRequest](c)
		products := make([]catalog.Product, len(reqs))
		for i := range reqs {
			p, err := reqs[i].toProduct()
			if err != nil {
				s.abort(c, err)
				return
			}
			products[i] = p
		}

		created, err := s.products.CreateMany(requestContext(c), products)
		if err != nil {
			s.logger.WarnContext(c.Request.Context(), "商品の一括作成が途中で失敗しました",
				"created", len(created), "requested", len(products))
			s.abort(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"message":  fmt.Sprintf("%d products created successfully", len(created)),
			"products": created,
		})
	}
}

// handleUpdateProduct は商品の更新を処理するハンドラを返す。
func (s *Server) handleUpdateProduct() gin.HandlerFunc {
	return func(c *gin.Context) {
		product, err := payload[productRequest](c).toProduct()
		if err != nil {
			s.abort(c, err)
			return
		}
		updated, err := s.products.Update(requestContext(c), c.Param("id"), product)
		if errors.Is(err, catalog.ErrNotFound) {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{
				Error:   "Not Found",
				Message: "Product not found while updating",
			})
			return
		}
		if err != nil {
			s.abort(c, err)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

// handleDeleteProduct は商品の削除を処理するハンドラを返す。
func (s *Server) handleDeleteProduct() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := s.products.Delete(requestContext(c), id); err != nil {
			s.abort(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "Product successfully deleted",
			"id":      id,
		})
	}
}
