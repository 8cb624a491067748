package token

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// UserID はトークンの "id" クレームに格納されるユーザー識別子。
// 発行元によって数値または文字列で表現されるため、どちらも文字列形式で保持する。
type UserID string

// UnmarshalJSON は数値・文字列どちらの表現も受け付ける。
func (u *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*u = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("idクレームのデコードに失敗: %w", err)
		}
		*u = UserID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("idクレームは数値または文字列である必要があります: %w", err)
	}
	*u = UserID(n.String())
	return nil
}

// MarshalJSON は整数として解釈できる値を数値として、それ以外を文字列として出力する。
func (u UserID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(u), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(u) {
		return []byte(u), nil
	}
	return json.Marshal(string(u))
}

// String は識別子の文字列形式を返す。
func (u UserID) String() string {
	return string(u)
}

// Claims はアクセストークンのクレームを表す。
// Decodeによってのみ生成され、生成後に変更してはならない。
type Claims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。
	UserID UserID `json:"id"`
}
