package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/nao1215/shopgate/internal/store"
)

var (
	// ErrNotFound は商品が存在しないことを表す。
	ErrNotFound = errors.New("product not found")
	// ErrCreationFailed はストアが識別子を返さず作成を確認できないことを表す。
	ErrCreationFailed = errors.New("failed to create product")
)

// Collection は商品コレクションに対するストア操作。
type Collection interface {
	List(ctx context.Context) (map[string]json.RawMessage, error)
	Get(ctx context.Context, id string) (json.RawMessage, error)
	Push(ctx context.Context, doc any) (string, error)
	Put(ctx context.Context, id string, doc any) (json.RawMessage, error)
	Delete(ctx context.Context, id string) error
}

// Service は商品カタログの操作を提供する。
type Service struct {
	products Collection
	logger   *slog.Logger
}

// NewService は新しいServiceを生成する。
func NewService(products Collection, logger *slog.Logger) *Service {
	return &Service{products: products, logger: logger}
}

// List は全商品を識別子順に返す。コレクションが存在しない場合は空のスライスを返す。
// 各ドキュメントは保存された形のまま返し、オブジェクトでないものだけを除く。
func (s *Service) List(ctx context.Context) ([]Product, error) {
	docs, err := s.products.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("商品一覧の取得に失敗: %w", err)
	}

	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	products := make([]Product, 0, len(ids))
	for _, id := range ids {
		p, err := decode(id, docs[id])
		if err != nil {
			s.logger.WarnContext(ctx, "オブジェクトでない商品ドキュメントをスキップします", "product_id", id, "error", err)
			continue
		}
		products = append(products, *p)
	}
	return products, nil
}

// Get は1件の商品を保存された形のまま返す。
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	raw, err := s.products.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("商品の取得に失敗: %w", err)
	}

	p, err := decode(id, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrUpstream, err)
	}
	return p, nil
}

// Create は商品を追加し、割り当てられた識別子付きで返す。
func (s *Service) Create(ctx context.Context, p Product) (*Product, error) {
	id, err := s.products.Push(ctx, p.document())
	if errors.Is(err, store.ErrNoIdentifier) {
		return nil, ErrCreationFailed
	}
	if err != nil {
		return nil, fmt.Errorf("商品の作成に失敗: %w", err)
	}

	p.ID = id
	s.logger.InfoContext(ctx, "商品を作成しました", "product_id", id)
	return &p, nil
}

// CreateMany は商品を1件ずつ順に追加する。
// 途中で失敗した場合は、それまでに追加した商品とエラーを返す。追加済みの商品は取り消さない。
func (s *Service) CreateMany(ctx context.Context, products []Product) ([]Product, error) {
	created := make([]Product, 0, len(products))
	for i, p := range products {
		c, err := s.Create(ctx, p)
		if err != nil {
			s.logger.ErrorContext(ctx, "一括作成が途中で失敗しました", "index", i, "created", len(created), "error", err)
			return created, fmt.Errorf("%d件目の作成に失敗: %w", i, err)
		}
		created = append(created, *c)
	}
	return created, nil
}

// Update は既存の商品を丸ごと置き換える。存在しない場合は ErrNotFound を返す。
func (s *Service) Update(ctx context.Context, id string, p Product) (*Product, error) {
	if _, err := s.products.Get(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("商品の取得に失敗: %w", err)
	}

	raw, err := s.products.Put(ctx, id, p.document())
	if err != nil {
		return nil, fmt.Errorf("商品の更新に失敗: %w", err)
	}

	// ストアが保存した内容を正とし、読めない場合は送信した内容を返す
	if saved, err := decode(id, raw); err == nil {
		return saved, nil
	}
	p.ID = id
	return &p, nil
}

// Delete は商品を削除する。存在しない場合は ErrNotFound を返す。
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.products.Get(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("商品の取得に失敗: %w", err)
	}

	if err := s.products.Delete(ctx, id); err != nil {
		return fmt.Errorf("商品の削除に失敗: %w", err)
	}
	s.logger.InfoContext(ctx, "商品を削除しました", "product_id", id)
	return nil
}
