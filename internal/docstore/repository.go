package docstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/shopgate/pkg/migration"
	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrationsFS embed.FS

// Open はSQLiteデータベースを開き、マイグレーションを適用する。
// dsn に ":memory:" を渡すとインメモリデータベースになる。
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("SQLiteの接続に失敗: %w", err)
	}
	// インメモリDBは接続ごとに別物になるため、接続を1本に固定する
	db.SetMaxOpenConns(1)

	if _, err := migration.Run(ctx, db, migrationsFS, "migrations", logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return db, nil
}

// Repository はドキュメントをSQLiteに永続化する。
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository は新しいリポジトリを生成する。
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// List はコレクションの全ドキュメントを返す。
func (r *Repository) List(ctx context.Context, collection string) (map[string]json.RawMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, body FROM documents WHERE collection = ? ORDER BY id", collection)
	if err != nil {
		return nil, fmt.Errorf("ドキュメント一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	docs := make(map[string]json.RawMessage)
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("ドキュメントの読み取りに失敗: %w", err)
		}
		docs[id] = json.RawMessage(body)
	}
	return docs, rows.Err()
}

// Get は1件のドキュメントを返す。存在しない場合は ok が false になる。
func (r *Repository) Get(ctx context.Context, collection, id string) (json.RawMessage, bool, error) {
	var body string
	err := r.db.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE collection = ? AND id = ?", collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ドキュメントの取得に失敗: %w", err)
	}
	return json.RawMessage(body), true, nil
}

// Put はドキュメントを保存する。既に存在する場合は丸ごと置き換える。
func (r *Repository) Put(ctx context.Context, collection, id string, body json.RawMessage) error {
	if _, err := r.db.ExecContext(ctx, upsertSQL, collection, id, string(body), r.timestamp()); err != nil {
		return fmt.Errorf("ドキュメントの保存に失敗: %w", err)
	}
	return nil
}

// Delete は1件のドキュメントを削除する。存在しなくてもエラーにしない。
func (r *Repository) Delete(ctx context.Context, collection, id string) error {
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ?", collection, id); err != nil {
		return fmt.Errorf("ドキュメントの削除に失敗: %w", err)
	}
	return nil
}

// ReplaceCollection はコレクションの中身をトランザクション内で丸ごと置き換える。
// docs が空ならコレクションを削除するのと同じになる。
func (r *Repository) ReplaceCollection(ctx context.Context, collection string, docs map[string]json.RawMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE collection = ?", collection); err != nil {
		return fmt.Errorf("コレクションの削除に失敗: %w", err)
	}
	ts := r.timestamp()
	for id, body := range docs {
		if _, err := tx.ExecContext(ctx, upsertSQL, collection, id, string(body), ts); err != nil {
			return fmt.Errorf("ドキュメント %s の保存に失敗: %w", id, err)
		}
	}
	return tx.Commit()
}

const upsertSQL = `
INSERT INTO documents (collection, id, body, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (collection, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
`

func (r *Repository) timestamp() string {
	return r.now().UTC().Format("2006-01-02T15:04:05.000Z")
}
