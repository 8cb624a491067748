// Package httpclient はゲートウェイから下流サービスへのHTTP通信を行うクライアントを提供する。
//
// 1つのClientが1つの下流サービスに対応し、リクエストの転送とJSON APIの呼び出しを行う。
// 下流サービスへの通信はサーキットブレーカーを経由し、障害が続く場合は
// 下流に接続せずに失敗を返す。
package httpclient
