package account

import (
	"encoding/json"
	"fmt"
	"maps"
)

// createdAtLayout はcreatedAtの書式（ミリ秒精度のISO 8601, UTC）。
const createdAtLayout = "2006-01-02T15:04:05.000Z07:00"

// User はストアに保存されるユーザーレコード。
// このパッケージが扱わないフィールドも保持し、書き戻し時に失わない。
type User struct {
	// ID はストアが割り当てた識別子。ドキュメント本体には含めない。
	ID string
	// Email は一意なメールアドレス。
	Email string
	// Name は表示名。
	Name string
	// Password はbcryptハッシュ、または移行前の平文。
	Password string
	// CreatedAt は登録日時。
	CreatedAt string

	// extra は未知のフィールド。
	extra map[string]json.RawMessage
}

// Profile はパスワードを除いたユーザー情報。
type Profile struct {
	// ID はユーザーの識別子。
	ID string `json:"id"`
	// Email はメールアドレス。
	Email string `json:"email"`
	// Name は表示名。
	Name string `json:"name"`
	// CreatedAt は登録日時。
	CreatedAt string `json:"createdAt,omitempty"`

	// extra はユーザーレコードに保存されている未知のフィールド。
	extra map[string]json.RawMessage
}

// Profile はパスワードを除いたユーザー情報を返す。
// ストアに保存されている未知のフィールドも含める。
func (u *User) Profile() Profile {
	p := Profile{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
	}
	if len(u.extra) > 0 {
		p.extra = maps.Clone(u.extra)
		delete(p.extra, "password")
		delete(p.extra, "id")
	}
	return p
}

// MarshalJSON は未知のフィールドを含めたプロフィールを出力する。
func (p Profile) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(p.extra)+4)
	for k, v := range p.extra {
		doc[k] = v
	}
	doc["id"] = p.ID
	doc["email"] = p.Email
	doc["name"] = p.Name
	if p.CreatedAt != "" {
		doc["createdAt"] = p.CreatedAt
	}
	return json.Marshal(doc)
}

// MarshalJSON はストアに保存するドキュメント形式に変換する。
func (u User) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(u.extra)+4)
	for k, v := range u.extra {
		doc[k] = v
	}
	doc["email"] = u.Email
	doc["name"] = u.Name
	doc["password"] = u.Password
	if u.CreatedAt != "" {
		doc["createdAt"] = u.CreatedAt
	}
	return json.Marshal(doc)
}

// UnmarshalJSON はストアのドキュメントを読み込む。
func (u *User) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("ユーザードキュメントのデコードに失敗: %w", err)
	}

	fields := []struct {
		key string
		dst *string
	}{
		{"email", &u.Email},
		{"name", &u.Name},
		{"password", &u.Password},
		{"createdAt", &u.CreatedAt},
	}
	for _, f := range fields {
		raw, ok := doc[f.key]
		if !ok {
			continue
		}
		delete(doc, f.key)
		if string(raw) == "null" {
			continue
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			return fmt.Errorf("ユーザードキュメントの %s が不正: %w", f.key, err)
		}
	}
	u.extra = doc
	return nil
}
