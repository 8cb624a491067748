package revocation

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cheng-cc-cc/heima-headline/pkg/logging"
	"github.com/cheng-cc-cc/heima-headline/pkg/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore はSQLiteに失効情報を保存するStore。
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite はSQLiteデータベースを開き、マイグレーションを適用する。
func OpenSQLite(ctx context.Context, path string, logger *logging.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// SQLiteの書き込みは1接続に制限する
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}
	if _, err := migration.Run(ctx, db, migrationsFS, "migrations", logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("マイグレーションに失敗: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Revoke は失効情報を登録する。
func (s *SQLiteStore) Revoke(ctx context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revocations (kind, subject, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (kind, subject) DO UPDATE SET
			expires_at = excluded.expires_at,
			revoked_at = datetime('now')
	`, string(entry.Kind), entry.Subject, entry.ExpiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("失効情報の登録に失敗: %w", err)
	}
	return nil
}

// List はnowの時点で有効な失効情報を返す。
func (s *SQLiteStore) List(ctx context.Context, now time.Time) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, subject, expires_at FROM revocations
		WHERE expires_at > ?
		ORDER BY kind, subject
	`, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("失効情報の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			kind, subject string
			expiresAt     int64
		)
		if err := rows.Scan(&kind, &subject, &expiresAt); err != nil {
			return nil, fmt.Errorf("失効情報の読み込みに失敗: %w", err)
		}
		entries = append(entries, Entry{
			Kind:      Kind(kind),
			Subject:   subject,
			ExpiresAt: time.UnixMilli(expiresAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("失効情報の読み込みに失敗: %w", err)
	}
	return entries, nil
}

// Prune はnowの時点で不要になった失効情報を削除する。
func (s *SQLiteStore) Prune(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM revocations WHERE expires_at <= ?", now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("失効情報の削除に失敗: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return int(n), nil
}

// Close はデータベース接続を閉じる。
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
