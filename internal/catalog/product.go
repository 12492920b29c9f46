package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
)

// idField は応答で識別子を表すフィールド名。
const idField = "id"

// Product は商品ドキュメント。
// ストアに保存されたフィールドは型や項目の有無を問わずそのまま保持し、応答で識別子を付けて返す。
type Product struct {
	// ID はストアが割り当てた識別子。
	ID string
	// Fields は識別子以外のフィールド。値はストアに保存されたJSONのまま。
	Fields map[string]json.RawMessage
}

// NewProduct はフィールドを持たない商品を生成する。
func NewProduct() Product {
	return Product{Fields: map[string]json.RawMessage{}}
}

// Set はフィールドの値をJSONにして設定する。
func (p *Product) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("フィールド %q のエンコードに失敗: %w", key, err)
	}
	if p.Fields == nil {
		p.Fields = map[string]json.RawMessage{}
	}
	p.Fields[key] = raw
	return nil
}

// Field はフィールドの値を dst にデコードする。フィールドがない場合は false を返す。
func (p Product) Field(key string, dst any) (bool, error) {
	raw, ok := p.Fields[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

// MarshalJSON は保存されたフィールドに識別子を加えたオブジェクトを出力する。
func (p Product) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(p.Fields)+1)
	maps.Copy(out, p.Fields)
	if p.ID != "" {
		id, err := json.Marshal(p.ID)
		if err != nil {
			return nil, err
		}
		out[idField] = id
	}
	return json.Marshal(out)
}

// UnmarshalJSON はJSONオブジェクトを読み込む。id フィールドは ID に移す。
func (p *Product) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return errors.New("商品ドキュメントがオブジェクトではありません")
	}
	p.ID = ""
	if raw, ok := fields[idField]; ok {
		var id string
		if err := json.Unmarshal(raw, &id); err == nil {
			p.ID = id
		}
		delete(fields, idField)
	}
	p.Fields = fields
	return nil
}

// document はストアに書き込む形（idを含まない）を返す。
func (p Product) document() map[string]json.RawMessage {
	doc := maps.Clone(p.Fields)
	if doc == nil {
		doc = map[string]json.RawMessage{}
	}
	delete(doc, idField)
	return doc
}

// decode はストアのドキュメントを商品に変換し、識別子を設定する。
// ドキュメント内の id はストアの識別子で上書きする。
func decode(id string, raw json.RawMessage) (*Product, error) {
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, errors.New("商品ドキュメントが空です")
	}
	var p Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("商品ドキュメントのデコードに失敗: %w", err)
	}
	p.ID = id
	return &p, nil
}
