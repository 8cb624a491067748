package revocation

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cheng-cc-cc/heima-headline/pkg/logging"
)

// newSQLiteStore は一時ファイルのSQLiteStoreを返す。
func newSQLiteStore(t *testing.T) Store {
	t.Helper()

	store, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "revocation.db"), logging.NewNop())
	if err != nil {
		t.Fatalf("OpenSQLite()でエラーが発生: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// newRedisStore はminiredisに接続したRedisStoreを返す。
func newRedisStore(t *testing.T) Store {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "test:revocation:")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// listSorted は有効な失効情報を対象の昇順で返す。
func listSorted(t *testing.T, store Store, now time.Time) []Entry {
	t.Helper()

	entries, err := store.List(context.Background(), now)
	if err != nil {
		t.Fatalf("List()でエラーが発生: %v", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Subject < entries[j].Subject })
	return entries
}

// TestStores は全てのStore実装が同じ振る舞いをすることを検証する。
func TestStores(t *testing.T) {
	t.Parallel()

	factories := map[string]func(t *testing.T) Store{
		"sqlite": newSQLiteStore,
		"redis":  newRedisStore,
	}

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for name, newStore := range factories {
		newStore := newStore
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			t.Run("登録した失効情報が有効期限まで取得できること", func(t *testing.T) {
				t.Parallel()

				store := newStore(t)
				mustRevoke(t, store, Entry{Kind: KindToken, Subject: "jti-1", ExpiresAt: now.Add(time.Hour)})
				mustRevoke(t, store, Entry{Kind: KindUser, Subject: "42", ExpiresAt: now.Add(2 * time.Hour)})
				mustRevoke(t, store, Entry{Kind: KindToken, Subject: "jti-old", ExpiresAt: now.Add(-time.Minute)})

				// 有効期限はミリ秒精度で保存される
				want := []Entry{
					{Kind: KindUser, Subject: "42", ExpiresAt: now.Add(2 * time.Hour)},
					{Kind: KindToken, Subject: "jti-1", ExpiresAt: now.Add(time.Hour)},
				}
				got := listSorted(t, store, now)
				if len(got) != len(want) {
					t.Fatalf("List()の件数 = %d, want %d: %+v", len(got), len(want), got)
				}
				for i := range want {
					if got[i].Kind != want[i].Kind || got[i].Subject != want[i].Subject {
						t.Errorf("List()[%d] = %s/%s, want %s/%s", i, got[i].Kind, got[i].Subject, want[i].Kind, want[i].Subject)
					}
					if got[i].ExpiresAt.UnixMilli() != want[i].ExpiresAt.UnixMilli() {
						t.Errorf("List()[%d].ExpiresAt = %v, want %v", i, got[i].ExpiresAt, want[i].ExpiresAt)
					}
				}

				got = listSorted(t, store, now.Add(90*time.Minute))
				if len(got) != 1 || got[0].Subject != "42" {
					t.Errorf("90分後のList() = %+v, want [42]", got)
				}
			})

			t.Run("同じ対象を再登録すると有効期限が上書きされること", func(t *testing.T) {
				t.Parallel()

				store := newStore(t)
				mustRevoke(t, store, Entry{Kind: KindUser, Subject: "7", ExpiresAt: now.Add(time.Minute)})
				mustRevoke(t, store, Entry{Kind: KindUser, Subject: "7", ExpiresAt: now.Add(time.Hour)})

				got := listSorted(t, store, now.Add(30*time.Minute))
				if len(got) != 1 {
					t.Fatalf("List()の件数 = %d, want 1", len(got))
				}
				if got[0].ExpiresAt.UnixMilli() != now.Add(time.Hour).UnixMilli() {
					t.Errorf("ExpiresAt = %v, want %v", got[0].ExpiresAt, now.Add(time.Hour))
				}
			})

			t.Run("Pruneで期限切れの失効情報のみ削除されること", func(t *testing.T) {
				t.Parallel()

				store := newStore(t)
				mustRevoke(t, store, Entry{Kind: KindToken, Subject: "a", ExpiresAt: now.Add(-time.Hour)})
				mustRevoke(t, store, Entry{Kind: KindUser, Subject: "b", ExpiresAt: now.Add(-time.Second)})
				mustRevoke(t, store, Entry{Kind: KindToken, Subject: "c", ExpiresAt: now.Add(time.Hour)})

				n, err := store.Prune(context.Background(), now)
				if err != nil {
					t.Fatalf("Prune()でエラーが発生: %v", err)
				}
				if n != 2 {
					t.Errorf("Prune() = %d, want 2", n)
				}

				got := listSorted(t, store, now.Add(-2*time.Hour))
				if len(got) != 1 || got[0].Subject != "c" {
					t.Errorf("Prune()後のList() = %+v, want [c]", got)
				}
			})

			t.Run("不正なエントリは登録できないこと", func(t *testing.T) {
				t.Parallel()

				ctx := context.Background()
				store := newStore(t)
				invalid := []Entry{
					{Kind: "device", Subject: "x", ExpiresAt: now},
					{Kind: KindToken, Subject: " ", ExpiresAt: now},
					{Kind: KindUser, Subject: "42"},
				}
				for _, e := range invalid {
					if err := store.Revoke(ctx, e); !errors.Is(err, ErrInvalidEntry) {
						t.Errorf("Revoke(%+v) = %v, want ErrInvalidEntry", e, err)
					}
				}
			})
		})
	}
}

// TestOpenSQLite はOpenSQLite関数を検証する。
func TestOpenSQLite(t *testing.T) {
	t.Parallel()

	t.Run("同じファイルを再度開いてもマイグレーションが成功すること", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "revocation.db")

		first, err := OpenSQLite(ctx, path, nil)
		if err != nil {
			t.Fatalf("OpenSQLite()でエラーが発生: %v", err)
		}
		mustRevoke(t, first, Entry{Kind: KindUser, Subject: "1", ExpiresAt: time.Now().Add(time.Hour)})
		if err := first.Close(); err != nil {
			t.Fatalf("Close()でエラーが発生: %v", err)
		}

		second, err := OpenSQLite(ctx, path, nil)
		if err != nil {
			t.Fatalf("再度のOpenSQLite()でエラーが発生: %v", err)
		}
		defer func() { _ = second.Close() }()

		if got := listSorted(t, second, time.Now()); len(got) != 1 {
			t.Errorf("List()の件数 = %d, want 1", len(got))
		}
	})
}

// TestOpenRedis はOpenRedis関数を検証する。
func TestOpenRedis(t *testing.T) {
	t.Parallel()

	t.Run("接続できる場合はStoreが返ること", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		store, err := OpenRedis(context.Background(), RedisConfig{Addr: mr.Addr()})
		if err != nil {
			t.Fatalf("OpenRedis()でエラーが発生: %v", err)
		}
		defer func() { _ = store.Close() }()
		if store.prefix != DefaultRedisPrefix {
			t.Errorf("prefix = %q, want %q", store.prefix, DefaultRedisPrefix)
		}
	})

	t.Run("接続できない場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		if _, err := OpenRedis(context.Background(), RedisConfig{Addr: addr}); err == nil {
			t.Error("エラーが返されるべき")
		}
	})
}

// TestParseKind はParseKind関数を検証する。
func TestParseKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{in: " Token ", want: KindToken},
		{in: "user", want: KindUser},
		{in: "session", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidEntry) {
				t.Errorf("ParseKind(%q) error = %v, want ErrInvalidEntry", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseKind(%q)でエラーが発生: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
