package reqctx

import "sync/atomic"

// Identity は下流サービスに伝播される認証済みユーザー。識別子のみを持つ。
type Identity struct {
	// UserID はゲートウェイが検証したユーザーの識別子。
	UserID string
}

// binding は実行単位に束縛されたIdentityと、束縛した世代番号の組。
type binding struct {
	gen      uint64
	identity Identity
}

// unit はPoolで再利用される実行単位。
type unit struct {
	// id はPool内での実行単位の番号。
	id int
	// gen は解放のたびに増加する世代番号。
	gen atomic.Uint64
	// current は現在束縛されているIdentity。
	current atomic.Pointer[binding]
}

// Scope は1つのリクエストに対応する実行単位へのハンドル。
// 取得時の世代でのみ有効で、解放後の操作はすべて無視される。
// nilのScopeは常に空として振る舞う。
type Scope struct {
	unit *unit
	gen  uint64
}

// live はScopeが現在の世代を指しているかを返す。
func (s *Scope) live() bool {
	return s != nil && s.unit != nil && s.unit.gen.Load() == s.gen
}

// Set はIdentityを束縛する。既存の値は積み重ねずに上書きする。
func (s *Scope) Set(identity Identity) {
	if !s.live() {
		return
	}
	next := &binding{gen: s.gen, identity: identity}
	for {
		old := s.unit.current.Load()
		if old != nil && old.gen > s.gen {
			return
		}
		if s.unit.current.CompareAndSwap(old, next) {
			return
		}
	}
}

// Get は束縛されているIdentityを返す。束縛が無い場合はfalseを返す。
func (s *Scope) Get() (Identity, bool) {
	if !s.live() {
		return Identity{}, false
	}
	b := s.unit.current.Load()
	if b == nil || b.gen != s.gen {
		return Identity{}, false
	}
	return b.identity, true
}

// Clear は束縛を無条件に解除する。
func (s *Scope) Clear() {
	if s == nil || s.unit == nil {
		return
	}
	for {
		old := s.unit.current.Load()
		if old == nil || old.gen != s.gen {
			return
		}
		if s.unit.current.CompareAndSwap(old, nil) {
			return
		}
	}
}

// Unit は実行単位の番号を返す。nilのScopeでは-1を返す。
func (s *Scope) Unit() int {
	if s == nil || s.unit == nil {
		return -1
	}
	return s.unit.id
}
