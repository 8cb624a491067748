package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"

	"github.com/cheng-cc-cc/heima-headline/pkg/reqctx"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testRequest はテストサーバーが受け取ったリクエスト情報を保持する構造体。
type testRequest struct {
	// Method はHTTPメソッド。
	Method string
	// Path はリクエストパス。
	Path string
	// Query はクエリ文字列。
	Query string
	// Body はリクエストボディ。
	Body []byte
	// Headers はリクエストヘッダー。
	Headers http.Header
}

// newBackend はリクエストを記録してhandlerで応答するテストサーバーを返す。
func newBackend(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *testRequest) {
	t.Helper()

	received := &testRequest{}
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*received = testRequest{
			Method:  r.Method,
			Path:    r.URL.Path,
			Query:   r.URL.RawQuery,
			Body:    body,
			Headers: r.Header.Clone(),
		}
		handler(w, r)
	}))
	t.Cleanup(backend.Close)
	return backend, received
}

// newClient はテスト用のClientを生成する。
func newClient(t *testing.T, baseURL string, breaker BreakerConfig) *Client {
	t.Helper()

	client, err := New(Config{Name: "wemedia", BaseURL: baseURL, Timeout: 5 * time.Second, Breaker: breaker})
	if err != nil {
		t.Fatalf("New()でエラーが発生: %v", err)
	}
	return client
}

// newProxyRouter はすべてのパスをclientに転送するルーターを返す。
func newProxyRouter(client *Client) *gin.Engine {
	router := gin.New()
	router.Any("/*path", client.Forward)
	return router
}

// TestNew はNew関数を検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("クライアントが正常に生成されること", func(t *testing.T) {
		t.Parallel()

		client := newClient(t, "http://localhost:8080", BreakerConfig{})
		if client.Name() != "wemedia" {
			t.Errorf("Name() = %q, want %q", client.Name(), "wemedia")
		}
		if client.httpClient.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want 5s", client.httpClient.Timeout)
		}
		if client.State() != gobreaker.StateClosed {
			t.Errorf("State() = %v, want closed", client.State())
		}
	})

	t.Run("タイムアウト未指定の場合30秒になること", func(t *testing.T) {
		t.Parallel()

		client, err := New(Config{BaseURL: "http://localhost:8080"})
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if client.httpClient.Timeout != DefaultTimeout {
			t.Errorf("Timeout = %v, want %v", client.httpClient.Timeout, DefaultTimeout)
		}
		if client.Name() != "localhost:8080" {
			t.Errorf("Name() = %q, want %q", client.Name(), "localhost:8080")
		}
	})

	t.Run("不正なURLはエラーになること", func(t *testing.T) {
		t.Parallel()

		for _, raw := range []string{"", "localhost:8080", "ftp://example.com", "http://"} {
			if _, err := New(Config{BaseURL: raw}); err == nil {
				t.Errorf("New(%q)がエラーを返すべき", raw)
			}
		}
	})
}

// TestForward はForwardメソッドを検証する。
func TestForward(t *testing.T) {
	t.Parallel()

	t.Run("パス・クエリ・ヘッダー・ボディがそのまま転送されること", func(t *testing.T) {
		t.Parallel()

		backend, received := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Backend", "wemedia")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":1}`))
		})
		router := newProxyRouter(newClient(t, backend.URL, BreakerConfig{}))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/wemedia/news?page=2", strings.NewReader(`{"title":"記事"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("userId", "42")
		req.Header.Set("Connection", "keep-alive")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusCreated {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusCreated)
		}
		if w.Body.String() != `{"id":1}` {
			t.Errorf("body = %q, want %q", w.Body.String(), `{"id":1}`)
		}
		if got := w.Header().Get("X-Backend"); got != "wemedia" {
			t.Errorf("X-Backend = %q, want %q", got, "wemedia")
		}
		if received.Method != http.MethodPost {
			t.Errorf("Method = %q, want %q", received.Method, http.MethodPost)
		}
		if received.Path != "/api/v1/wemedia/news" {
			t.Errorf("Path = %q, want %q", received.Path, "/api/v1/wemedia/news")
		}
		if received.Query != "page=2" {
			t.Errorf("Query = %q, want %q", received.Query, "page=2")
		}
		if string(received.Body) != `{"title":"記事"}` {
			t.Errorf("Body = %q, want %q", received.Body, `{"title":"記事"}`)
		}
		if got := received.Headers.Get("userId"); got != "42" {
			t.Errorf("userId = %q, want %q", got, "42")
		}
		if got := received.Headers.Get("X-Forwarded-For"); got == "" {
			t.Error("X-Forwarded-Forが設定されていない")
		}
	})

	t.Run("下流のエラーステータスはそのまま返されること", func(t *testing.T) {
		t.Parallel()

		backend, _ := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		router := newProxyRouter(newClient(t, backend.URL, BreakerConfig{}))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/wemedia/missing", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("下流に接続できない場合502を返すこと", func(t *testing.T) {
		t.Parallel()

		backend := httptest.NewServer(http.NotFoundHandler())
		url := backend.URL
		backend.Close()
		router := newProxyRouter(newClient(t, url, BreakerConfig{}))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/wemedia/me", nil))
		if w.Code != http.StatusBadGateway {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadGateway)
		}
	})

	t.Run("連続して失敗した後はブレーカーが開き503を返すこと", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		backend, _ := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		})
		client := newClient(t, backend.URL, BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Minute})
		router := newProxyRouter(client)

		for i := 0; i < 2; i++ {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/wemedia/me", nil))
			if w.Code != http.StatusInternalServerError {
				t.Errorf("%d回目のステータスコード = %d, want %d", i+1, w.Code, http.StatusInternalServerError)
			}
		}

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/wemedia/me", nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
		if got := calls.Load(); got != 2 {
			t.Errorf("下流の呼び出し回数 = %d, want 2", got)
		}
		if client.State() != gobreaker.StateOpen {
			t.Errorf("State() = %v, want open", client.State())
		}
	})
}

// TestForwardCancel はクライアントが転送中にキャンセルした場合を検証する。
func TestForwardCancel(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	backend, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			close(started)
			select {
			case <-r.Context().Done():
			case <-release:
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	// backend.Close より先に待機中のハンドラを解放する
	t.Cleanup(func() { close(release) })

	client := newClient(t, backend.URL, BreakerConfig{FailureThreshold: 1, OpenTimeout: time.Minute})
	router := newProxyRouter(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/slow", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		router.ServeHTTP(w, req)
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("下流にリクエストが届かない")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("キャンセル後もForwardが戻らない")
	}

	if w.Code == http.StatusBadGateway || w.Code == http.StatusServiceUnavailable {
		t.Errorf("キャンセルが下流の障害として応答された: %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("キャンセル後にボディが書き込まれた: %q", w.Body.String())
	}
	if client.State() != gobreaker.StateClosed {
		t.Errorf("State() = %v, want closed", client.State())
	}

	// 閾値1でもブレーカーは開いておらず、次のリクエストは転送される
	next := httptest.NewRecorder()
	router.ServeHTTP(next, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if next.Code != http.StatusOK {
		t.Errorf("次のリクエストのステータスコード = %d, want %d", next.Code, http.StatusOK)
	}
}

// TestGetJSON はGetJSONメソッドを検証する。
func TestGetJSON(t *testing.T) {
	t.Parallel()

	t.Run("レスポンスをデシリアライズしIdentityを伝播すること", func(t *testing.T) {
		t.Parallel()

		backend, received := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		client := newClient(t, backend.URL, BreakerConfig{})

		var result struct {
			Status string `json:"status"`
		}
		pool := reqctx.NewPool()
		err := pool.Do(context.Background(), func(ctx context.Context, scope *reqctx.Scope) error {
			scope.Set(reqctx.Identity{UserID: "1001"})
			return client.GetJSON(ctx, "/health", &result)
		})
		if err != nil {
			t.Fatalf("GetJSON()でエラーが発生: %v", err)
		}
		if result.Status != "ok" {
			t.Errorf("status = %q, want %q", result.Status, "ok")
		}
		if got := received.Headers.Get("userId"); got != "1001" {
			t.Errorf("userId = %q, want %q", got, "1001")
		}
	})

	t.Run("Identityが無い場合userIdヘッダーを付けないこと", func(t *testing.T) {
		t.Parallel()

		backend, received := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		})
		client := newClient(t, backend.URL, BreakerConfig{})

		if err := client.GetJSON(context.Background(), "/health", nil); err != nil {
			t.Fatalf("GetJSON()でエラーが発生: %v", err)
		}
		if _, ok := received.Headers["Userid"]; ok {
			t.Error("userIdヘッダーが付与された")
		}
	})

	t.Run("2xx以外のステータスはエラーになること", func(t *testing.T) {
		t.Parallel()

		backend, _ := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("停止中"))
		})
		client := newClient(t, backend.URL, BreakerConfig{})

		err := client.GetJSON(context.Background(), "/health", nil)
		if err == nil {
			t.Fatal("GetJSON()がエラーを返すべき")
		}
		if !strings.Contains(err.Error(), "status=503") {
			t.Errorf("エラーにステータスが含まれていない: %v", err)
		}
	})
}
