// Package token はゲートウェイで使用するアクセストークン（JWT）のデコードと分類を提供する。
//
// Decodeは署名と構造のみを検証し、有効期限切れのトークンもクレームとして返す。
// 有効期限・発行者・失効状態の判定はClassifyが担当し、結果をStatusとして返す。
// どちらもI/Oを行わず、同じトークン・同じ時刻に対して常に同じ結果を返す。
package token
