// Package wemedia は自媒体サービスの内部実装を提供する。
//
// ゲートウェイの後ろで動作する下流サービスであり、ゲートウェイが付与した
// userId ヘッダーをリクエスト単位のスコープに束縛してから業務処理を行う。
package wemedia
