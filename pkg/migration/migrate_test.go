package migration

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

// openTestDB は一時ファイルのSQLiteデータベースを開く。
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("データベースのオープンに失敗: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// testFS はテスト用のマイグレーションファイル。
func testFS() fstest.MapFS {
	return fstest.MapFS{
		"migrations/000002_add_index.up.sql":    {Data: []byte("CREATE INDEX idx_items_name ON items (name);")},
		"migrations/000001_create_items.up.sql": {Data: []byte("CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL);")},
		"migrations/000001_create_items.down.sql": {Data: []byte("DROP TABLE items;")},
		"migrations/README.md":                   {Data: []byte("説明")},
		"migrations/bad_name.up.sql":             {Data: []byte("SELECT 1;")},
	}
}

// TestCollect はCollect関数を検証する。
func TestCollect(t *testing.T) {
	t.Parallel()

	t.Run("up.sqlのみをバージョン順に収集すること", func(t *testing.T) {
		t.Parallel()

		got, err := Collect(testFS(), "migrations")
		if err != nil {
			t.Fatalf("Collect()でエラーが発生: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("件数 = %d, want 2", len(got))
		}
		if got[0].Version != 1 || got[0].Name != "create_items" {
			t.Errorf("1件目 = %+v, want version=1 name=create_items", got[0])
		}
		if got[1].Version != 2 || got[1].Name != "add_index" {
			t.Errorf("2件目 = %+v, want version=2 name=add_index", got[1])
		}
	})

	t.Run("バージョンが重複している場合エラーになること", func(t *testing.T) {
		t.Parallel()

		fsys := fstest.MapFS{
			"m/000001_a.up.sql": {Data: []byte("SELECT 1;")},
			"m/000001_b.up.sql": {Data: []byte("SELECT 1;")},
		}
		if _, err := Collect(fsys, "m"); err == nil {
			t.Error("Collect()がエラーを返すべき")
		}
	})
}

// TestRun はRun関数を検証する。
func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("未適用のマイグレーションが適用され2回目はスキップされること", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		db := openTestDB(t)

		n, err := Run(ctx, db, testFS(), "migrations", nil)
		if err != nil {
			t.Fatalf("Run()でエラーが発生: %v", err)
		}
		if n != 2 {
			t.Errorf("適用件数 = %d, want 2", n)
		}

		if _, err := db.ExecContext(ctx, "INSERT INTO items (name) VALUES ('a')"); err != nil {
			t.Errorf("作成したテーブルに書き込めない: %v", err)
		}

		n, err = Run(ctx, db, testFS(), "migrations", nil)
		if err != nil {
			t.Fatalf("2回目のRun()でエラーが発生: %v", err)
		}
		if n != 0 {
			t.Errorf("2回目の適用件数 = %d, want 0", n)
		}

		applied, err := AppliedVersions(ctx, db)
		if err != nil {
			t.Fatalf("AppliedVersions()でエラーが発生: %v", err)
		}
		if !applied[1] || !applied[2] || len(applied) != 2 {
			t.Errorf("適用済みバージョン = %v, want {1, 2}", applied)
		}
	})

	t.Run("SQLが失敗した場合はバージョンが記録されないこと", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		db := openTestDB(t)
		fsys := fstest.MapFS{
			"m/000001_ok.up.sql":     {Data: []byte("CREATE TABLE a (id INTEGER);")},
			"m/000002_broken.up.sql": {Data: []byte("CREATE TABL broken;")},
		}

		n, err := Run(ctx, db, fsys, "m", nil)
		if err == nil {
			t.Fatal("Run()がエラーを返すべき")
		}
		if n != 1 {
			t.Errorf("適用件数 = %d, want 1", n)
		}

		applied, err := AppliedVersions(ctx, db)
		if err != nil {
			t.Fatalf("AppliedVersions()でエラーが発生: %v", err)
		}
		if applied[2] {
			t.Error("失敗したマイグレーションが記録されている")
		}
	})

	t.Run("ディレクトリが存在しない場合エラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := Run(context.Background(), openTestDB(t), fstest.MapFS{}, "missing", nil); err == nil {
			t.Error("Run()がエラーを返すべき")
		}
	})
}
