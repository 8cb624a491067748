// Package gateway はAPIゲートウェイの内部実装を提供する。
//
// 外部からアクセス可能な唯一のサービスであり、認証の境界として機能する。
// /api/v1 以下のリクエストはアクセストークンを検証したうえで、
// パスの接頭辞が最も長く一致する下流サービスに userId ヘッダー付きで転送される。
package gateway
