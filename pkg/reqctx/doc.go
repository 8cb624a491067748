// Package reqctx はリクエスト単位の認証済みユーザー情報を保持する仕組みを提供する。
//
// 下流サービスでは、1つのリクエストを処理する実行単位（Scope）をPoolから取得し、
// ハンドラの実行中だけIdentityを保持する。実行単位は後続のリクエストで再利用されるため、
// Pool.Doによる取得と解放の組み合わせで、成功・エラー・パニックのいずれの経路でも
// Identityが確実に消去されることを保証する。
//
// 解放済みのScopeを保持し続けたgoroutineは、同じ実行単位を再利用した別リクエストの
// Identityを参照できない。Scopeは取得時の世代番号に束縛されている。
package reqctx
