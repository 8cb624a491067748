// Package middleware はゲートウェイと下流サービスで使用するGinミドルウェアを提供する。
//
// ゲートウェイ側の GatewayAuth はアクセストークンを検証して userId ヘッダーを付与し、
// 処理時間を X-Response-Duration ヘッダーとして返す。
// 下流サービス側の PropagateIdentity は userId ヘッダーをリクエスト単位のスコープに束縛し、
// ハンドラの終了時に必ず解放する。
//
// その他、リクエストID、アクセスログ、パニックリカバリ、CORSの共通ミドルウェアを含む。
package middleware
