package gateway

import "github.com/nao1215/shopgate/internal/catalog"

// registerRequest はユーザー登録のリクエストボディ。
type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"required,min=2"`
}

// loginRequest はログインのリクエストボディ。
type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// updateProfileRequest はプロフィール更新のリクエストボディ。
// newPassword を指定する場合は currentPassword も必要。
type updateProfileRequest struct {
	Name            *string `json:"name" validate:"omitempty,min=2"`
	Email           *string `json:"email" validate:"omitempty,email"`
	CurrentPassword *string `json:"currentPassword" validate:"required_with=NewPassword"`
	NewPassword     *string `json:"newPassword" validate:"omitempty,min=6"`
}

// productRequest は商品の作成・更新のリクエストボディ。
// 0 や false を未指定と区別するため必須項目もポインタで受ける。
// 価格と在庫の上限はJSONの数値が精度を失わない最大の整数 (2^53-1)。
type productRequest struct {
	Name         *string           `json:"name" validate:"required,min=3,max=100"`
	Price        *float64          `json:"price" validate:"required,min=0,max=9007199254740991"`
	Description  *string           `json:"description" validate:"required,min=10"`
	Category     *string           `json:"category" validate:"required,min=1"`
	Featured     *bool             `json:"featured" validate:"required"`
	ImageMain    *string           `json:"imageMain" validate:"required,url"`
	ImageGallery []string          `json:"imageGallery" validate:"omitempty,dive,url"`
	Stock        *float64          `json:"stock" validate:"required,min=0,max=9007199254740991,integer"`
	Rating       *float64          `json:"rating" validate:"omitempty,min=0,max=5"`
	Specs        map[string]string `json:"specs"`
}

// toProduct は検証済みのリクエストを商品ドキュメントに変換する。
// 送られたフィールドだけを設定し、空の配列やオブジェクトもそのまま残す。
func (r *productRequest) toProduct() (catalog.Product, error) {
	p := catalog.NewProduct()
	fields := []struct {
		key string
		set bool
		v   any
	}{
		{"name", r.Name != nil, r.Name},
		{"price", r.Price != nil, r.Price},
		{"description", r.Description != nil, r.Description},
		{"category", r.Category != nil, r.Category},
		{"featured", r.Featured != nil, r.Featured},
		{"imageMain", r.ImageMain != nil, r.ImageMain},
		{"imageGallery", r.ImageGallery != nil, r.ImageGallery},
		{"stock", r.Stock != nil, r.Stock},
		{"rating", r.Rating != nil, r.Rating},
		{"specs", r.Specs != nil, r.Specs},
	}
	for _, f := range fields {
		if !f.set {
			continue
		}
		if err := p.Set(f.key, f.v); err != nil {
			return catalog.Product{}, err
		}
	}
	return p, nil
}
