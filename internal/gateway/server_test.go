package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/nao1215/shopgate/internal/config"
	"github.com/nao1215/shopgate/internal/docstore"
	"github.com/nao1215/shopgate/internal/store"
	"github.com/nao1215/shopgate/pkg/httpclient"
	"github.com/nao1215/shopgate/pkg/middleware"
	"github.com/nao1215/shopgate/pkg/validation"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	// testJWTSecret はテスト用のJWT署名秘密鍵。
	testJWTSecret = "test-secret-key"
	// testStoreAuth はテスト用のストア資格情報。
	testStoreAuth = "store-secret"
)

// testEnv はゲートウェイとその背後のドキュメントストアをまとめたテスト環境。
type testEnv struct {
	server *Server
	// store はゲートウェイを経由せずにストアを直接操作するクライアント。
	store *store.Client
	// storeURL はストアのベースURL。
	storeURL string
}

// newTestEnv はインメモリSQLiteのドキュメントストアに接続したゲートウェイを生成する。
// 各テストケースで独立したストアを使用するため、テスト間の干渉が発生しない。
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	db, err := docstore.Open(context.Background(), ":memory:", logger)
	if err != nil {
		t.Fatalf("ドキュメントストアの準備に失敗: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ds := docstore.NewServer("0", db, logger, docstore.WithSecret(testStoreAuth))
	storeSrv := httptest.NewServer(ds.Handler())
	t.Cleanup(storeSrv.Close)

	storeURL := storeSrv.URL + "/db"
	s, err := NewServer(testConfig(storeURL), logger)
	if err != nil {
		t.Fatalf("ゲートウェイの生成に失敗: %v", err)
	}
	return &testEnv{
		server:   s,
		store:    store.New(storeURL, httpclient.WithQueryParam("auth", testStoreAuth)),
		storeURL: storeURL,
	}
}

// testConfig はテスト用の設定を返す。
func testConfig(storeURL string) *config.Config {
	return &config.Config{
		Port:         "0",
		StoreURL:     storeURL,
		StoreAuth:    testStoreAuth,
		StoreTimeout: 5 * time.Second,
		JWTSecret:    testJWTSecret,
		TokenTTL:     24 * time.Hour,
		CORSOrigins:  []string{"*"},
		BcryptCost:   4,
		LogFormat:    "text",
	}
}

// do はゲートウェイにリクエストを送り、レスポンスレコーダーを返す。
func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

// register はユーザーを登録し、発行されたトークンとユーザーIDを返す。
func (e *testEnv) register(t *testing.T, email, password, name string) (string, string) {
	t.Helper()

	body := `{"email":"` + email + `","password":"` + password + `","name":"` + name + `"}`
	w := e.do(t, http.MethodPost, "/auth/register", "", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("登録に失敗: status=%d, body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	decodeBody(t, w, &resp)
	return resp.Token, resp.User.ID
}

// storedUser はストアに保存されたユーザードキュメントを返す。
func (e *testEnv) storedUser(t *testing.T, id string) map[string]any {
	t.Helper()

	raw, err := e.store.Collection(usersCollection).Get(context.Background(), id)
	if err != nil {
		t.Fatalf("ユーザードキュメントの取得に失敗: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("ユーザードキュメントのデコードに失敗: %v", err)
	}
	return doc
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v, body=%s", err, w.Body.String())
	}
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, errorName string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("ステータスコードが一致しない: got=%d, want=%d, body=%s", w.Code, status, w.Body.String())
	}
	var resp errorResponse
	decodeBody(t, w, &resp)
	if resp.Error != errorName {
		t.Errorf("エラー種別が一致しない: got=%q, want=%q", resp.Error, errorName)
	}
	if resp.Message == "" {
		t.Error("メッセージが空")
	}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコードが一致しない: got=%d", w.Code)
	}
	if w.Header().Get(middleware.HeaderRequestID) == "" {
		t.Error("リクエストIDが付与されていない")
	}
}

func TestNoRoute(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/unknown", "", "")
	assertError(t, w, http.StatusNotFound, "URL Not Found")
}

func TestRegister(t *testing.T) {
	t.Parallel()

	t.Run("登録するとトークンとパスワードを含まないユーザーを返す", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		w := env.do(t, http.MethodPost, "/auth/register", "", `{"email":"ann@example.com","password":"secret1","name":"Ann"}`)
		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコードが一致しない: got=%d, body=%s", w.Code, w.Body.String())
		}
		var resp map[string]any
		decodeBody(t, w, &resp)
		if resp["message"] != "User registered successfully" {
			t.Errorf("メッセージが一致しない: %v", resp["message"])
		}
		if tok, _ := resp["token"].(string); tok == "" {
			t.Error("トークンが空")
		}
		user, _ := resp["user"].(map[string]any)
		if _, ok := user["password"]; ok {
			t.Error("パスワードが応答に含まれている")
		}
		if user["email"] != "ann@example.com" || user["name"] != "Ann" {
			t.Errorf("ユーザーが一致しない: %v", user)
		}

		id, _ := user["id"].(string)
		doc := env.storedUser(t, id)
		if hash, _ := doc["password"].(string); !strings.HasPrefix(hash, "$2") {
			t.Errorf("パスワードがハッシュ化されていない: %q", hash)
		}
		if _, ok := doc["createdAt"]; !ok {
			t.Error("createdAtが保存されていない")
		}
	})

	t.Run("同じメールアドレスで2回登録すると失敗し、レコードは1件のまま", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.register(t, "ann@example.com", "secret1", "Ann")

		w := env.do(t, http.MethodPost, "/auth/register", "", `{"email":"ann@example.com","password":"other12","name":"Another"}`)
		assertError(t, w, http.StatusBadRequest, "Registration Failed")

		docs, err := env.store.Collection(usersCollection).List(context.Background())
		if err != nil {
			t.Fatalf("ユーザー一覧の取得に失敗: %v", err)
		}
		if len(docs) != 1 {
			t.Errorf("レコード数が一致しない: got=%d, want=1", len(docs))
		}
	})

	t.Run("すべての違反をまとめて返す", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		w := env.do(t, http.MethodPost, "/auth/register", "", `{"email":"not-an-email","password":"123","role":"admin"}`)
		assertError(t, w, http.StatusBadRequest, "Validation Error")

		var resp errorResponse
		decodeBody(t, w, &resp)
		fields := make(map[string]bool)
		for _, d := range resp.Details {
			fields[d.Field] = true
		}
		for _, want := range []string{"email", "password", "name", "role"} {
			if !fields[want] {
				t.Errorf("%s の違反が報告されていない: %+v", want, resp.Details)
			}
		}
	})

	t.Run("不正なJSONは400", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		w := env.do(t, http.MethodPost, "/auth/register", "", `{"email":`)
		assertError(t, w, http.StatusBadRequest, "Bad Request")
	})
}

func TestLogin(t *testing.T) {
	t.Parallel()

	t.Run("正しい資格情報でトークンを発行する", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		_, id := env.register(t, "ann@example.com", "secret1", "Ann")

		w := env.do(t, http.MethodPost, "/auth/login", "", `{"email":"ann@example.com","password":"secret1"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが一致しない: got=%d, body=%s", w.Code, w.Body.String())
		}
		var resp sessionResponse
		decodeBody(t, w, &resp)
		if resp.Message != "Login successful" || resp.User.ID != id {
			t.Errorf("応答が一致しない: %+v", resp)
		}

		claims, err := middleware.NewTokenIssuer(testJWTSecret, 0).Verify(resp.Token)
		if err != nil {
			t.Fatalf("発行されたトークンが検証できない: %v", err)
		}
		if claims.UserID != id || claims.Email != "ann@example.com" {
			t.Errorf("クレームが一致しない: %+v", claims)
		}
	})

	t.Run("未登録のメールアドレスとパスワード誤りは同一の応答", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.register(t, "ann@example.com", "secret1", "Ann")

		wrongPassword := env.do(t, http.MethodPost, "/auth/login", "", `{"email":"ann@example.com","password":"wrong-password"}`)
		unknownEmail := env.do(t, http.MethodPost, "/auth/login", "", `{"email":"bob@example.com","password":"secret1"}`)

		assertError(t, wrongPassword, http.StatusUnauthorized, "Authentication Failed")
		if wrongPassword.Code != unknownEmail.Code {
			t.Errorf("ステータスコードが異なる: %d, %d", wrongPassword.Code, unknownEmail.Code)
		}
		if wrongPassword.Body.String() != unknownEmail.Body.String() {
			t.Errorf("応答ボディが異なる:\n%s\n%s", wrongPassword.Body.String(), unknownEmail.Body.String())
		}
	})

	t.Run("平文で保存された旧形式のパスワードでもログインできる", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		users := env.store.Collection(usersCollection)
		if _, err := users.Push(context.Background(), map[string]any{
			"email":    "legacy@example.com",
			"name":     "Legacy",
			"password": "plain-pass",
		}); err != nil {
			t.Fatalf("旧形式ユーザーの作成に失敗: %v", err)
		}

		w := env.do(t, http.MethodPost, "/auth/login", "", `{"email":"legacy@example.com","password":"plain-pass"}`)
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコードが一致しない: got=%d, body=%s", w.Code, w.Body.String())
		}
		w = env.do(t, http.MethodPost, "/auth/login", "", `{"email":"legacy@example.com","password":"plain-pasS"}`)
		assertError(t, w, http.StatusUnauthorized, "Authentication Failed")
	})
}

func TestProfile(t *testing.T) {
	t.Parallel()

	t.Run("トークンがなければ401、不正なら403", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		assertError(t, env.do(t, http.MethodGet, "/auth/profile", "", ""), http.StatusUnauthorized, "Unauthorized")
		assertError(t, env.do(t, http.MethodGet, "/auth/profile", "garbage", ""), http.StatusForbidden, "Forbidden")
	})

	t.Run("認証前にはスキーマ検証を行わない", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		w := env.do(t, http.MethodPut, "/auth/profile", "", `{"name":1}`)
		assertError(t, w, http.StatusUnauthorized, "Unauthorized")
	})

	t.Run("パスワードを除いたプロフィールを返す", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		token, id := env.register(t, "ann@example.com", "secret1", "Ann")

		w := env.do(t, http.MethodGet, "/auth/profile", token, "")
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが一致しない: got=%d, body=%s", w.Code, w.Body.String())
		}
		var resp map[string]any
		decodeBody(t, w, &resp)
		if resp["id"] != id || resp["email"] != "ann@example.com" || resp["name"] != "Ann" {
			t.Errorf("プロフィールが一致しない: %v", resp)
		}
		if _, ok := resp["password"]; ok {
			t.Error("パスワードが応答に含まれている")
		}
	})

	t.Run("保存されている追加のフィールドもプロフィールに含める", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		token, id := env.register(t, "ann@example.com", "secret1", "Ann")

		doc := env.storedUser(t, id)
		doc["role"] = "admin"
		if _, err := env.store.Collection(usersCollection).Put(context.Background(), id, doc); err != nil {
			t.Fatalf("ドキュメントの更新に失敗: %v", err)
		}

		for _, tc := range []struct {
			method, body string
			user         func(map[string]any) map[string]any
		}{
			{http.MethodGet, "", func(r map[string]any) map[string]any { return r }},
			{http.MethodPut, `{"name":"Annie"}`, func(r map[string]any) map[string]any {
				u, _ := r["user"].(map[string]any)
				return u
			}},
		} {
			w := env.do(t, tc.method, "/auth/profile", token, tc.body)
			if w.Code != http.StatusOK {
				t.Fatalf("%s: ステータスコードが一致しない: got=%d, body=%s", tc.method, w.Code, w.Body.String())
			}
			var resp map[string]any
			decodeBody(t, w, &resp)
			user := tc.user(resp)
			if user["role"] != "admin" {
				t.Errorf("%s: 追加のフィールドが含まれていない: %v", tc.method, user)
			}
			if _, ok := user["password"]; ok {
				t.Errorf("%s: パスワードが応答に含まれている", tc.method)
			}
		}
	})

	t.Run("存在しないユーザーのトークンは404", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		token, err := middleware.NewTokenIssuer(testJWTSecret, time.Hour).Issue("ghost", "ghost@example.com")
		if err != nil {
			t.Fatalf("トークンの発行に失敗: %v", err)
		}

		assertError(t, env.do(t, http.MethodGet, "/auth/profile", token, ""), http.StatusNotFound, "Not Found")
	})
}

func TestUpdateProfile(t *testing.T) {
	t.Parallel()

	t.Run("名前だけを変更するとメールアドレスとパスワードは変わらない", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		token, id := env.register(t, "ann@example.com", "secret1", "Ann")
		before := env.storedUser(t, id)

		w := env.do(t, http.MethodPut, "/auth/profile", token, `{"name":"Annie"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが一致しない: got=%d, body=%s", w.Code, w.Body.String())
		}
		var resp struct {
			Message string         `json:"message"`
			User    map[string]any `json:"user"`
		}
		decodeBody(t, w, &resp)
		if resp.Message != "Profile updated successfully" || resp.User["name"] != "Annie" {
			t.Errorf("応答が一致しない: %+v", resp)
		}
		if _, ok := resp.User["password"]; ok {
			t.Error("パスワードが応答に含まれている")
		}

		after := env.storedUser(t, id)
		if after["email"] != before["email"] || after["password"] != before["password"] {
			t.Errorf("名前以外が変わっている: before=%v, after=%v", before, after)
		}
	})

	t.Run("現在のパスワードが誤っていればハッシュは変わらない", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		token, id := env.register(t, "ann@example.com", "secret1", "Ann")
		before := env.storedUser(t, id)

		w := env.do(t, http.MethodPut, "/auth/profile", token, `{"currentPassword":"wrong","newPassword":"newsecret"}`)
		assertError(t, w, http.StatusUnauthorized, "Update Failed")

		if after := env.storedUser(t, id); after["password"] != before["password"] {
			t.Error("パスワードハッシュが変わっている")
		}
	})

	t.Run("パスワードを変更すると新しいパスワードでログインできる", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		token, _ := env.register(t, "ann@example.com", "secret1", "Ann")

		w := env.do(t, http.MethodPut, "/auth/profile", token, `{"currentPassword":"secret1","newPassword":"newsecret"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが一致しない: got=%d, body=%s", w.Code, w.Body.String())
		}
		w = env.do(t, http.MethodPost, "/auth/login", "", `{"email":"ann@example.com","password":"newsecret"}`)
		if w.Code != http.StatusOK {
			t.Errorf("新しいパスワードでログインできない: %d", w.Code)
		}
		w = env.do(t, http.MethodPost, "/auth/login", "", `{"email":"ann@example.com","password":"secret1"}`)
		assertError(t, w, http.StatusUnauthorized, "Authentication Failed")
	})

	t.Run("新しいパスワードだけでは検証エラー", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		token, _ := env.register(t, "ann@example.com", "secret1", "Ann")

		w := env.do(t, http.MethodPut, "/auth/profile", token, `{"newPassword":"newsecret"}`)
		assertError(t, w, http.StatusBadRequest, "Validation Error")
		var resp errorResponse
		decodeBody(t, w, &resp)
		if len(resp.Details) != 1 || resp.Details[0].Field != "newPassword" {
			t.Errorf("違反が一致しない: %+v", resp.Details)
		}
	})

	t.Run("使用中のメールアドレスには変更できない", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.register(t, "bob@example.com", "secret1", "Bob")
		token, _ := env.register(t, "ann@example.com", "secret1", "Ann")

		w := env.do(t, http.MethodPut, "/auth/profile", token, `{"email":"bob@example.com"}`)
		assertError(t, w, http.StatusBadRequest, "Update Failed")
	})

	t.Run("未知のフィールドは保持される", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		token, id := env.register(t, "ann@example.com", "secret1", "Ann")

		doc := env.storedUser(t, id)
		doc["role"] = "admin"
		if _, err := env.store.Collection(usersCollection).Put(context.Background(), id, doc); err != nil {
			t.Fatalf("ドキュメントの更新に失敗: %v", err)
		}

		w := env.do(t, http.MethodPut, "/auth/profile", token, `{"name":"Annie"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが一致しない: got=%d", w.Code)
		}
		if after := env.storedUser(t, id); after["role"] != "admin" {
			t.Errorf("未知のフィールドが失われた: %v", after)
		}
	})
}

// validProduct は検証を通る商品のJSON。
const validProduct = `{
	"name": "Desk Lamp",
	"price": 0,
	"description": "A warm reading lamp",
	"category": "lighting",
	"featured": false,
	"imageMain": "https://img.example.com/lamp.png",
	"imageGallery": ["https://img.example.com/lamp-2.png"],
	"stock": 0,
	"rating": 4.5,
	"specs": {"color": "white"}
}`

func TestProducts(t *testing.T) {
	t.Parallel()

	t.Run("コレクションが空なら空配列", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		w := env.do(t, http.MethodGet, "/product", "", "")
		if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
			t.Errorf("応答が一致しない: got=%d %s", w.Code, w.Body.String())
		}
	})

	t.Run("作成には認証が必要", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		assertError(t, env.do(t, http.MethodPost, "/product", "", validProduct), http.StatusUnauthorized, "Unauthorized")
	})

	t.Run("作成した商品を取得すると識別子以外は同じ", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		token, _ := env.register(t, "ann@example.com", "secret1", "Ann")

		w := env.do(t, http.MethodPost, "/product", token, validProduct)
		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコードが一致しない: got=%d, body=%s", w.Code, w.Body.String())
		}
		var created map[string]any
		decodeBody(t, w, &created)
		id, _ := created["id"].(string)
		if id == "" {
			t.Fatal("識別子が割り当てられていない")
		}

		var want map[string]any
		if err := json.Unmarshal([]byte(validProduct), &want); err != nil {
			t.Fatal(err)
		}
		want["id"] = id
		if diff := cmp.Diff(want, created); diff != "" {
			t.Errorf("作成応答が一致しない (-want +got):\n%s", diff)
		}

		w = env.do(t, http.MethodGet, "/product/"+id, "", "")
		var got map[string]any
		decodeBody(t, w, &got)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("取得結果が一致しない (-want +got):\n%s", diff)
		}

		w = env.do(t, http.MethodGet, "/product", "", "")
		var list []map[string]any
		decodeBody(t, w, &list)
		if len(list) != 1 || list[0]["id"] != id {
			t.Errorf("一覧が一致しない: %v", list)
		}
	})

	t.Run("すべての違反をまとめて返す", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		token, _ := env.register(t, "ann@example.com", "secret1", "Ann")

		w := env.do(t, http.MethodPost, "/product", token,
			`{"name":"ab","price":-1,"description":"short","featured":"yes","imageMain":"not a uri","stock":1.5,"rating":6}`)
		assertError(t, w, http.StatusBadRequest, "Validation Error")

		var resp errorResponse
		decodeBody(t, w, &resp)
		got := make(map[string]bool)
		for _, d := range resp.Details {
			got[d.Field] = true
		}
		want := []string{"name", "price", "description", "category", "featured", "imageMain", "stock", "rating"}
		for _, f := range want {
			if !got[f] {
				t.Errorf("%s の違反が報告されていない: %+v", f, resp.Details)
			}
		}
	})

	t.Run("精度を失う大きさの在庫は保存せず検証エラー", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		token, _ := env.register(t, "ann@example.com", "secret1", "Ann")

		body := strings.Replace(validProduct, `"stock": 0`, `"stock": 1e20`, 1)
		w := env.do(t, http.MethodPost, "/product", token, body)
		assertError(t, w, http.StatusBadRequest, "Validation Error")

		var resp errorResponse
		decodeBody(t, w, &resp)
		want := []validation.Violation{{
			Field:   "stock",
			Message: `"stock" must be less than or equal to 9007199254740991`,
		}}
		if diff := cmp.Diff(want, resp.Details); diff != "" {
			t.Errorf("違反が一致しない (-want +got):\n%s", diff)
		}

		docs, err := env.store.Collection(productsCollection).List(context.Background())
		if err != nil {
			t.Fatalf("商品一覧の取得に失敗: %v", err)
		}
		if len(docs) != 0 {
			t.Errorf("商品が保存されている: %v", docs)
		}
	})

	t.Run("空の配列とオブジェクトは送った形のまま返す", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		token, _ := env.register(t, "ann@example.com", "secret1", "Ann")

		body := `{"name":"Desk Lamp","price":10,"description":"A warm reading lamp","category":"lighting","featured":true,"imageMain":"https://img.example.com/lamp.png","imageGallery":[],"stock":1,"specs":{}}`
		w := env.do(t, http.MethodPost, "/product", token, body)
		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコードが一致しない: got=%d, body=%s", w.Code, w.Body.String())
		}
		var created map[string]any
		decodeBody(t, w, &created)

		var want map[string]any
		if err := json.Unmarshal([]byte(body), &want); err != nil {
			t.Fatal(err)
		}
		want["id"] = created["id"]
		if diff := cmp.Diff(want, created); diff != "" {
			t.Errorf("作成応答が一致しない (-want +got):\n%s", diff)
		}
	})

	t.Run("他の書き込み元が保存した形の異なる商品もそのまま返す", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		token, _ := env.register(t, "ann@example.com", "secret1", "Ann")
		if w := env.do(t, http.MethodPost, "/product", token, validProduct); w.Code != http.StatusCreated {
			t.Fatalf("商品の作成に失敗: status=%d, body=%s", w.Code, w.Body.String())
		}

		legacyID, err := env.store.Collection(productsCollection).Push(context.Background(), map[string]any{
			"name":   "Old lamp",
			"price":  "free",
			"vendor": "acme",
		})
		if err != nil {
			t.Fatalf("旧形式の商品の作成に失敗: %v", err)
		}
		want := map[string]any{"id": legacyID, "name": "Old lamp", "price": "free", "vendor": "acme"}

		w := env.do(t, http.MethodGet, "/product/"+legacyID, "", "")
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが一致しない: got=%d, body=%s", w.Code, w.Body.String())
		}
		var got map[string]any
		decodeBody(t, w, &got)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("取得結果が一致しない (-want +got):\n%s", diff)
		}

		w = env.do(t, http.MethodGet, "/product", "", "")
		var list []map[string]any
		decodeBody(t, w, &list)
		if len(list) != 2 {
			t.Fatalf("一覧の件数が一致しない: got=%d, body=%s", len(list), w.Body.String())
		}
		found := false
		for _, p := range list {
			if p["id"] == legacyID {
				found = true
				if diff := cmp.Diff(want, p); diff != "" {
					t.Errorf("一覧の要素が一致しない (-want +got):\n%s", diff)
				}
			}
		}
		if !found {
			t.Errorf("旧形式の商品が一覧にない: %v", list)
		}
	})

	t.Run("存在しない商品は404", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		assertError(t, env.do(t, http.MethodGet, "/product/missing", "", ""), http.StatusNotFound, "Not Found")
	})

	t.Run("存在しない商品の更新は404", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		token, _ := env.register(t, "ann@example.com", "secret1", "Ann")

		w := env.do(t, http.MethodPut, "/product/missing", token, validProduct)
		assertError(t, w, http.StatusNotFound, "Not Found")
		if !strings.Contains(w.Body.String(), "while updating") {
			t.Errorf("メッセージが一致しない: %s", w.Body.String())
		}
	})

	t.Run("商品を丸ごと置き換える", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		token, _ := env.register(t, "ann@example.com", "secret1", "Ann")
		w := env.do(t, http.MethodPost, "/product", token, validProduct)
		var created map[string]any
		decodeBody(t, w, &created)
		id, _ := created["id"].(string)

		update := `{"name":"Floor Lamp","price":120,"description":"A tall standing lamp","category":"lighting","featured":true,"imageMain":"https://img.example.com/floor.png","stock":3}`
		w = env.do(t, http.MethodPut, "/product/"+id, token, update)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが一致しない: got=%d, body=%s", w.Code, w.Body.String())
		}

		w = env.do(t, http.MethodGet, "/product/"+id, "", "")
		var got map[string]any
		decodeBody(t, w, &got)
		var want map[string]any
		if err := json.Unmarshal([]byte(update), &want); err != nil {
			t.Fatal(err)
		}
		want["id"] = id
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("更新結果が一致しない (-want +got):\n%s", diff)
		}
	})

	t.Run("削除後は取得も削除も404", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		token, _ := env.register(t, "ann@example.com", "secret1", "Ann")
		w := env.do(t, http.MethodPost, "/product", token, validProduct)
		var created map[string]any
		decodeBody(t, w, &created)
		id, _ := created["id"].(string)

		w = env.do(t, http.MethodDelete, "/product/"+id, token, "")
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが一致しない: got=%d, body=%s", w.Code, w.Body.String())
		}
		var resp map[string]any
		decodeBody(t, w, &resp)
		if resp["id"] != id || resp["message"] != "Product successfully deleted" {
			t.Errorf("応答が一致しない: %v", resp)
		}

		assertError(t, env.do(t, http.MethodGet, "/product/"+id, "", ""), http.StatusNotFound, "Not Found")
		assertError(t, env.do(t, http.MethodDelete, "/product/"+id, token, ""), http.StatusNotFound, "Not Found")
	})
}

func TestCreateProductsInBulk(t *testing.T) {
	t.Parallel()

	t.Run("空配列は0件で成功", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		token, _ := env.register(t, "ann@example.com", "secret1", "Ann")

		w := env.do(t, http.MethodPost, "/product/bulk", token, `[]`)
		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコードが一致しない: got=%d, body=%s", w.Code, w.Body.String())
		}
		var resp struct {
			Message  string           `json:"message"`
			Products []map[string]any `json:"products"`
		}
		decodeBody(t, w, &resp)
		if resp.Message != "0 products created successfully" || resp.Products == nil || len(resp.Products) != 0 {
			t.Errorf("応答が一致しない: %s", w.Body.String())
		}
	})

	t.Run("配列以外は400", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		token, _ := env.register(t, "ann@example.com", "secret1", "Ann")

		assertError(t, env.do(t, http.MethodPost, "/product/bulk", token, validProduct), http.StatusBadRequest, "Bad Request")
	})

	t.Run("違反には要素のインデックスが付く", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		token, _ := env.register(t, "ann@example.com", "secret1", "Ann")

		broken := strings.Replace(validProduct, `"price": 0`, `"price": -5`, 1)
		w := env.do(t, http.MethodPost, "/product/bulk", token, "["+validProduct+","+broken+"]")
		assertError(t, w, http.StatusBadRequest, "Validation Error")
		var resp errorResponse
		decodeBody(t, w, &resp)
		if len(resp.Details) != 1 || resp.Details[0].Field != "1.price" {
			t.Errorf("違反が一致しない: %+v", resp.Details)
		}

		docs, err := env.store.Collection(productsCollection).List(context.Background())
		if err != nil {
			t.Fatalf("商品一覧の取得に失敗: %v", err)
		}
		if len(docs) != 0 {
			t.Errorf("検証エラーなのに商品が作成された: %d件", len(docs))
		}
	})

	t.Run("すべての要素を作成する", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		token, _ := env.register(t, "ann@example.com", "secret1", "Ann")

		w := env.do(t, http.MethodPost, "/product/bulk", token, "["+validProduct+","+validProduct+"]")
		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコードが一致しない: got=%d, body=%s", w.Code, w.Body.String())
		}
		w = env.do(t, http.MethodGet, "/product", "", "")
		var list []map[string]any
		decodeBody(t, w, &list)
		if len(list) != 2 {
			t.Errorf("件数が一致しない: got=%d, want=2", len(list))
		}
	})
}

func TestUpstreamFailure(t *testing.T) {
	t.Parallel()

	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	s, err := NewServer(testConfig(downURL+"/db"), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("ゲートウェイの生成に失敗: %v", err)
	}
	env := &testEnv{server: s}

	w := env.do(t, http.MethodGet, "/product", "", "")
	assertError(t, w, http.StatusBadGateway, "Upstream Error")
	if strings.Contains(w.Body.String(), "127.0.0.1") {
		t.Errorf("内部の接続先が漏れている: %s", w.Body.String())
	}
}

func TestStoreRejectsWrongCredentials(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	cfg := testConfig(env.storeURL)
	cfg.StoreAuth = "wrong-secret"
	s, err := NewServer(cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("ゲートウェイの生成に失敗: %v", err)
	}
	other := &testEnv{server: s}

	assertError(t, other.do(t, http.MethodGet, "/product", "", ""), http.StatusBadGateway, "Upstream Error")
	if w := env.do(t, http.MethodGet, "/product", "", ""); w.Code != http.StatusOK {
		t.Errorf("正しい資格情報で失敗した: %d", w.Code)
	}
}
