package token

import "errors"

// ErrMalformed はトークンを解析・検証できなかったことを表す。
// 構造の破損、未対応の署名アルゴリズム、署名不一致はすべてこのエラーに包まれる。
var ErrMalformed = errors.New("トークンの形式が不正です")

// Status はトークン検証の分類結果。
type Status int

const (
	// StatusOK は有効なトークン。
	StatusOK Status = iota
	// StatusExpired は形式は正しいが有効期限を過ぎたトークン。
	StatusExpired
	// StatusInvalid は形式は正しいが意味的に拒否されたトークン（失効、発行者不一致など）。
	StatusInvalid
	// StatusMalformed はデコードできなかったトークン。
	StatusMalformed
)

// String はログ・メトリクスのラベルに使う名前を返す。
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusExpired:
		return "expired"
	case StatusInvalid:
		return "invalid"
	case StatusMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Result は1回の検証の結果。Claimsは StatusOK の場合のみ設定される。
type Result struct {
	// Status は分類結果。
	Status Status
	// Claims は検証に成功したトークンのクレーム。
	Claims *Claims
}

// OK は検証に成功したかどうかを返す。
func (r Result) OK() bool {
	return r.Status == StatusOK && r.Claims != nil
}
