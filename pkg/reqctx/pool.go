package reqctx

import (
	"context"
	"sync"
)

// Pool は再利用可能な実行単位を管理する。
// 解放された実行単位は後入れ先出しで再利用される。
type Pool struct {
	mu    sync.Mutex
	free  []*unit
	units int
}

// NewPool は空のPoolを生成する。実行単位は必要に応じて作成される。
func NewPool() *Pool {
	return &Pool{}
}

// Acquire は実行単位を取得し、その世代に束縛されたScopeを返す。
// 返されたScopeは必ずReleaseすること。通常はDoを使用する。
func (p *Pool) Acquire() *Scope {
	p.mu.Lock()
	var u *unit
	if n := len(p.free); n > 0 {
		u = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		u = &unit{id: p.units}
		p.units++
	}
	p.mu.Unlock()

	return &Scope{unit: u, gen: u.gen.Load()}
}

// Release はScopeの束縛を消去し、実行単位をPoolに戻す。
// 同じScopeを2回解放しても実行単位は1度しか戻らない。
func (p *Pool) Release(s *Scope) {
	if s == nil || s.unit == nil {
		return
	}
	// 世代を先に進め、古いScopeからの書き込みを無効にしてから消去する
	if !s.unit.gen.CompareAndSwap(s.gen, s.gen+1) {
		return
	}
	s.unit.current.Store(nil)

	p.mu.Lock()
	p.free = append(p.free, s.unit)
	p.mu.Unlock()
}

// Run は実行単位を取得してfnを実行し、fnの終了後に必ず解放する。
// fnがパニックした場合も解放は行われ、パニックはそのまま伝播する。
func (p *Pool) Run(ctx context.Context, fn func(ctx context.Context, scope *Scope)) {
	scope := p.Acquire()
	defer p.Release(scope)

	fn(NewContext(ctx, scope), scope)
}

// Do はRunと同じく実行単位を束縛してfnを実行し、fnのエラーを返す。
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context, scope *Scope) error) error {
	var err error
	p.Run(ctx, func(ctx context.Context, scope *Scope) {
		err = fn(ctx, scope)
	})
	return err
}

// Stats は作成済みの実行単位の数と、そのうち待機中の数を返す。
func (p *Pool) Stats() (units, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.units, len(p.free)
}
