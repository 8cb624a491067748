package revocation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind は失効の対象の種類。
type Kind string

const (
	// KindToken はトークンID（jti）単位の失効。
	KindToken Kind = "token"
	// KindUser はユーザー単位の失効。そのユーザーの全トークンが拒否される。
	KindUser Kind = "user"
)

// ErrInvalidEntry は失効エントリの内容が不正であることを表す。
var ErrInvalidEntry = errors.New("失効エントリが不正です")

// Entry は1件の失効情報。
type Entry struct {
	// Kind は失効の対象の種類。
	Kind Kind
	// Subject はトークンIDまたはユーザーID。
	Subject string
	// ExpiresAt はこの失効情報が不要になる時刻。トークンの有効期限以降を指定する。
	ExpiresAt time.Time
}

// Validate はエントリの内容を検証する。
func (e Entry) Validate() error {
	if e.Kind != KindToken && e.Kind != KindUser {
		return fmt.Errorf("%w: 種類 %q は未対応です", ErrInvalidEntry, e.Kind)
	}
	if strings.TrimSpace(e.Subject) == "" {
		return fmt.Errorf("%w: 対象が空です", ErrInvalidEntry)
	}
	if e.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: 有効期限が設定されていません", ErrInvalidEntry)
	}
	return nil
}

// ParseKind は文字列をKindに変換する。
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindToken, KindUser:
		return k, nil
	default:
		return "", fmt.Errorf("%w: 種類 %q は未対応です", ErrInvalidEntry, s)
	}
}

// Store は失効情報の永続化先。
type Store interface {
	// Revoke は失効情報を登録する。同じ対象が登録済みの場合は有効期限を上書きする。
	Revoke(ctx context.Context, entry Entry) error
	// List はnowの時点で有効な失効情報を返す。
	List(ctx context.Context, now time.Time) ([]Entry, error)
	// Prune はnowの時点で不要になった失効情報を削除し、削除件数を返す。
	Prune(ctx context.Context, now time.Time) (int, error)
	// Close は接続を閉じる。
	Close() error
}
