// Package store はリモートドキュメントストアのRESTクライアントを提供する。
//
// ストアはリソースごとのパス（/<collection>.json, /<collection>/<id>.json）に
// JSONドキュメントを保持し、存在しないドキュメントはJSONの null として返す。
// POSTはストアが割り当てた識別子を {"name": "<id>"} として返す。
// 識別子の割り当てはストアだけが行い、このパッケージは状態を持たない。
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/nao1215/shopgate/pkg/httpclient"
)

var (
	// ErrNotFound はドキュメントが存在しないことを表す。
	ErrNotFound = errors.New("ドキュメントが存在しません")
	// ErrUpstream はストアに到達できない、または応答が不正であることを表す。
	ErrUpstream = errors.New("ドキュメントストアとの通信に失敗")
	// ErrNoIdentifier はストアが識別子を割り当てなかったことを表す。
	ErrNoIdentifier = errors.New("ストアが識別子を返しませんでした")
)

// forbiddenKeyChars はドキュメントキーに使用できない文字。
const forbiddenKeyChars = ".$#[]/"

// Client はリモートドキュメントストアのクライアント。
type Client struct {
	// http はストアへのHTTPクライアント。
	http *httpclient.Client
}

// New は新しいストアクライアントを生成する。
func New(baseURL string, opts ...httpclient.Option) *Client {
	return &Client{http: httpclient.New(baseURL, opts...)}
}

// Collection は指定したコレクションへのハンドルを返す。
func (c *Client) Collection(name string) *Collection {
	return &Collection{client: c, name: name}
}

// Collection は1つのコレクション（例: "user", "products"）を表す。
type Collection struct {
	client *Client
	name   string
}

// Name はコレクション名を返す。
func (col *Collection) Name() string {
	return col.name
}

// pushResponse はPOSTの応答。
type pushResponse struct {
	// Name はストアが割り当てた識別子。
	Name string `json:"name"`
}

// List はコレクションの全ドキュメントを識別子をキーとするマップで返す。
// コレクションが存在しない場合は空のマップを返す。
func (col *Collection) List(ctx context.Context) (map[string]json.RawMessage, error) {
	var raw json.RawMessage
	if err := col.client.http.GetJSON(ctx, col.collectionPath(), &raw); err != nil {
		return nil, upstream(err)
	}
	docs, err := decodeCollection(raw)
	if err != nil {
		return nil, upstream(err)
	}
	return docs, nil
}

// Get は1件のドキュメントを取得する。存在しない場合は ErrNotFound を返す。
func (col *Collection) Get(ctx context.Context, id string) (json.RawMessage, error) {
	if !validKey(id) {
		return nil, ErrNotFound
	}
	var raw json.RawMessage
	if err := col.client.http.GetJSON(ctx, col.documentPath(id), &raw); err != nil {
		return nil, upstream(err)
	}
	if isNull(raw) {
		return nil, ErrNotFound
	}
	return raw, nil
}

// Push はドキュメントを追加し、ストアが割り当てた識別子を返す。
func (col *Collection) Push(ctx context.Context, doc any) (string, error) {
	var resp pushResponse
	if err := col.client.http.PostJSON(ctx, col.collectionPath(), doc, &resp); err != nil {
		return "", upstream(err)
	}
	if resp.Name == "" {
		return "", ErrNoIdentifier
	}
	return resp.Name, nil
}

// Put は識別子のドキュメントを丸ごと置き換え、ストアが保存した内容を返す。
func (col *Collection) Put(ctx context.Context, id string, doc any) (json.RawMessage, error) {
	if !validKey(id) {
		return nil, ErrNotFound
	}
	var raw json.RawMessage
	if err := col.client.http.PutJSON(ctx, col.documentPath(id), doc, &raw); err != nil {
		return nil, upstream(err)
	}
	return raw, nil
}

// Delete は識別子のドキュメントを削除する。
func (col *Collection) Delete(ctx context.Context, id string) error {
	if !validKey(id) {
		return ErrNotFound
	}
	if err := col.client.http.DeleteJSON(ctx, col.documentPath(id), nil); err != nil {
		return upstream(err)
	}
	return nil
}

// collectionPath はコレクションのパスを返す。
func (col *Collection) collectionPath() string {
	return "/" + url.PathEscape(col.name) + ".json"
}

// documentPath はドキュメントのパスを返す。
func (col *Collection) documentPath(id string) string {
	return "/" + url.PathEscape(col.name) + "/" + url.PathEscape(id) + ".json"
}

// decodeCollection はコレクションの応答をマップに変換する。
// 連番キーのみのコレクションは配列で返されるため、インデックスをキーとして扱う。
func decodeCollection(raw json.RawMessage) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || isNull(trimmed) {
		return map[string]json.RawMessage{}, nil
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("コレクションのデコードに失敗: %w", err)
		}
		docs := make(map[string]json.RawMessage, len(items))
		for i, item := range items {
			if !isNull(item) {
				docs[strconv.Itoa(i)] = item
			}
		}
		return docs, nil
	}

	var docs map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &docs); err != nil {
		return nil, fmt.Errorf("コレクションのデコードに失敗: %w", err)
	}
	for id, doc := range docs {
		if isNull(doc) {
			delete(docs, id)
		}
	}
	return docs, nil
}

// validKey はストアのキーとして使用できるかを返す。
func validKey(id string) bool {
	return id != "" && !strings.ContainsAny(id, forbiddenKeyChars)
}

// isNull はJSON値がnullかどうかを返す。
func isNull(raw []byte) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// upstream はストア呼び出しのエラーを ErrUpstream でラップする。
func upstream(err error) error {
	return fmt.Errorf("%w: %w", ErrUpstream, err)
}
