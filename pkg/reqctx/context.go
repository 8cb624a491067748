package reqctx

import "context"

// scopeKey はcontext.ContextにScopeを格納するためのキー。
type scopeKey struct{}

// NewContext はScopeを格納したコンテキストを返す。
func NewContext(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// FromContext はコンテキストに格納されたScopeを返す。
// 格納されていない場合はnilを返すが、nilのScopeもメソッド呼び出しは安全。
func FromContext(ctx context.Context) *Scope {
	if ctx == nil {
		return nil
	}
	scope, _ := ctx.Value(scopeKey{}).(*Scope)
	return scope
}

// IdentityFromContext はコンテキストのScopeに束縛されたIdentityを返す。
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	return FromContext(ctx).Get()
}
