package revocation

import "time"

// Snapshot はある時点の失効情報。生成後は変更されないため、並行に参照できる。
type Snapshot struct {
	tokens   map[string]struct{}
	users    map[string]struct{}
	loadedAt time.Time
}

// NewSnapshot はエントリからSnapshotを生成する。
func NewSnapshot(entries []Entry, loadedAt time.Time) *Snapshot {
	s := &Snapshot{
		tokens:   make(map[string]struct{}),
		users:    make(map[string]struct{}),
		loadedAt: loadedAt,
	}
	for _, e := range entries {
		switch e.Kind {
		case KindToken:
			s.tokens[e.Subject] = struct{}{}
		case KindUser:
			s.users[e.Subject] = struct{}{}
		}
	}
	return s
}

// IsRevoked はトークンIDまたはユーザーIDが失効しているかを返す。
// 空の値は失効として扱わない。
func (s *Snapshot) IsRevoked(tokenID, userID string) bool {
	if s == nil {
		return false
	}
	if tokenID != "" {
		if _, ok := s.tokens[tokenID]; ok {
			return true
		}
	}
	if userID != "" {
		if _, ok := s.users[userID]; ok {
			return true
		}
	}
	return false
}

// Len は失効しているトークンとユーザーの合計数を返す。
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tokens) + len(s.users)
}

// LoadedAt はSnapshotを読み込んだ時刻を返す。
func (s *Snapshot) LoadedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.loadedAt
}
