package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Clock は現在時刻を返す。テストで時刻を固定するために注入する。
type Clock interface {
	Now() time.Time
}

// ClockFunc は関数をClockとして扱うためのアダプタ。
type ClockFunc func() time.Time

// Now はfを呼び出して現在時刻を返す。
func (f ClockFunc) Now() time.Time {
	return f()
}

// systemClock はtime.Nowを使用するClock。
var systemClock = ClockFunc(time.Now)

// RevocationChecker はトークンまたはユーザーが失効しているかを判定する。
// Classifyから呼ばれるため、実装はI/Oを行わずメモリ上のスナップショットを参照すること。
type RevocationChecker interface {
	IsRevoked(tokenID, userID string) bool
}

// supportedMethods は受け付ける署名アルゴリズム。
var supportedMethods = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
}

// Validator はアクセストークンのデコードと分類を行う。
// 状態を持たないため、複数のgoroutineから同時に使用できる。
type Validator struct {
	// secret はHMAC署名の検証鍵。
	secret []byte
	// issuer は期待する発行者。空の場合は検証しない。
	issuer string
	// clock は有効期限判定に使う時刻源。
	clock Clock
	// revocation は失効判定。nilの場合は判定しない。
	revocation RevocationChecker
	// parser は署名のみを検証するJWTパーサ。
	parser *jwt.Parser
}

// Option はValidatorの設定を変更する。
type Option func(*Validator)

// WithClock は時刻源を差し替える。
func WithClock(clock Clock) Option {
	return func(v *Validator) {
		if clock != nil {
			v.clock = clock
		}
	}
}

// WithIssuer は期待する発行者を設定する。
func WithIssuer(issuer string) Option {
	return func(v *Validator) {
		v.issuer = issuer
	}
}

// WithRevocation は失効判定を設定する。
func WithRevocation(checker RevocationChecker) Option {
	return func(v *Validator) {
		v.revocation = checker
	}
}

// NewValidator は新しいValidatorを生成する。secretは空であってはならない。
func NewValidator(secret string, opts ...Option) (*Validator, error) {
	if secret == "" {
		return nil, errors.New("トークン検証用のシークレットが設定されていません")
	}

	v := &Validator{
		secret: []byte(secret),
		clock:  systemClock,
		// 有効期限はClassifyで判定するため、パース時のクレーム検証は無効化する
		parser: jwt.NewParser(
			jwt.WithValidMethods(supportedMethods),
			jwt.WithoutClaimsValidation(),
		),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Decode はトークン文字列を解析し、署名を検証してクレームを返す。
// 有効期限切れのトークンはエラーにならない。失敗時のエラーはErrMalformedを包む。
func (v *Validator) Decode(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, fmt.Errorf("%w: トークンが空です", ErrMalformed)
	}

	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("%w: 署名を検証できません", ErrMalformed)
	}
	return claims, nil
}

// Classify はデコード済みのクレームを分類する。
// 有効期限切れは他の拒否理由より先に判定する。
func (v *Validator) Classify(claims *Claims) Status {
	if claims == nil || claims.ExpiresAt == nil {
		return StatusInvalid
	}

	now := v.clock.Now()
	if now.After(claims.ExpiresAt.Time) {
		return StatusExpired
	}
	if claims.NotBefore != nil && now.Before(claims.NotBefore.Time) {
		return StatusInvalid
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return StatusInvalid
	}
	if strings.TrimSpace(claims.UserID.String()) == "" {
		return StatusInvalid
	}
	if v.revocation != nil && v.revocation.IsRevoked(claims.ID, claims.UserID.String()) {
		return StatusInvalid
	}
	return StatusOK
}

// Validate はDecodeとClassifyを順に実行し、結果を返す。
func (v *Validator) Validate(tokenString string) Result {
	claims, err := v.Decode(tokenString)
	if err != nil {
		return Result{Status: StatusMalformed}
	}

	status := v.Classify(claims)
	if status != StatusOK {
		return Result{Status: status}
	}
	return Result{Status: StatusOK, Claims: claims}
}
