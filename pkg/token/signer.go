package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTTL は発行するトークンのデフォルト有効期間。
const DefaultTTL = 24 * time.Hour

// Signer はアクセストークンを発行する。
// 本来のトークン発行はログインサービスの責務であり、開発ツールとテストで使用する。
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  Clock
}

// NewSigner は新しいSignerを生成する。ttlが0以下の場合はDefaultTTLを使用する。
func NewSigner(secret, issuer string, ttl time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("トークン署名用のシークレットが設定されていません")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Signer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		clock:  systemClock,
	}, nil
}

// WithClock は時刻源を差し替えたSignerを返す。
func (s *Signer) WithClock(clock Clock) *Signer {
	cp := *s
	if clock != nil {
		cp.clock = clock
	}
	return &cp
}

// Sign はユーザーIDを持つトークンを発行する。
func (s *Signer) Sign(userID string) (string, error) {
	now := s.clock.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		UserID: UserID(userID),
	}
	return s.SignClaims(claims)
}

// SignClaims は任意のクレームをHS256で署名する。
func (s *Signer) SignClaims(claims *Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}
