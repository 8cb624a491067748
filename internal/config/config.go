// Package config はゲートウェイと下流サービスの設定を読み込む。
//
// 設定はデフォルト値、YAMLファイル、環境変数の順に上書きされ、最後に検証される。
package config

import (
	"time"

	"github.com/cheng-cc-cc/heima-headline/pkg/httpclient"
	"github.com/cheng-cc-cc/heima-headline/pkg/logging"
	"github.com/cheng-cc-cc/heima-headline/pkg/middleware"
	"github.com/cheng-cc-cc/heima-headline/pkg/revocation"
	"github.com/cheng-cc-cc/heima-headline/pkg/token"
)

// 失効情報の保存先。
const (
	// BackendNone は失効判定を行わない。
	BackendNone = "none"
	// BackendSQLite はSQLiteに保存する。
	BackendSQLite = "sqlite"
	// BackendRedis はRedisに保存する。
	BackendRedis = "redis"
)

// Config は全体の設定。
type Config struct {
	Log        logging.Config   `yaml:"log"`
	Token      TokenConfig      `yaml:"token"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Wemedia    WemediaConfig    `yaml:"wemedia"`
	Revocation RevocationConfig `yaml:"revocation"`
}

// TokenConfig はアクセストークンの設定。
type TokenConfig struct {
	// Secret はHMAC署名の鍵。
	Secret string `yaml:"secret"`
	// SecretFile はSecretを読み込むファイル。Secretが空の場合のみ使用する。
	SecretFile string `yaml:"secret_file"`
	// Issuer は発行者。空の場合は発行者を検証しない。
	Issuer string `yaml:"issuer"`
	// TTL は発行するトークンの有効期間。
	TTL time.Duration `yaml:"ttl"`
}

// UpstreamConfig は転送先の下流サービス。
type UpstreamConfig struct {
	// Name はサービス名。環境変数 <NAME>_URL でURLを上書きできる。
	Name string `yaml:"name"`
	// Prefix はこのサービスに転送するパスの接頭辞。
	Prefix string `yaml:"prefix"`
	// URL はサービスのベースURL。
	URL string `yaml:"url"`
}

// GatewayConfig はゲートウェイの設定。
type GatewayConfig struct {
	Port           int                      `yaml:"port"`
	BypassMarkers  []string                 `yaml:"bypass_markers"`
	AllowedOrigins []string                 `yaml:"allowed_origins"`
	Upstreams      []UpstreamConfig         `yaml:"upstreams"`
	ForwardTimeout time.Duration            `yaml:"forward_timeout"`
	Breaker        httpclient.BreakerConfig `yaml:"breaker"`
}

// WemediaConfig は自媒体サービスの設定。
type WemediaConfig struct {
	Port int `yaml:"port"`
}

// RevocationConfig は失効情報の設定。
type RevocationConfig struct {
	// Backend は保存先（none、sqlite、redis）。
	Backend string `yaml:"backend"`
	// SQLitePath はSQLiteのファイルパス。
	SQLitePath string `yaml:"sqlite_path"`
	// Redis はRedisの接続設定。
	Redis revocation.RedisConfig `yaml:"redis"`
	// Schedule はSnapshotの更新スケジュール。
	Schedule string `yaml:"schedule"`
}

// Defaults はデフォルトの設定を返す。
func Defaults() Config {
	return Config{
		Log: logging.DefaultConfig(),
		Token: TokenConfig{
			Issuer: "heima-headline",
			TTL:    token.DefaultTTL,
		},
		Gateway: GatewayConfig{
			Port:           51601,
			BypassMarkers:  []string{middleware.DefaultBypassMarker},
			AllowedOrigins: []string{"http://localhost:3000"},
			Upstreams: []UpstreamConfig{
				{Name: "user", Prefix: "/api/v1/user", URL: "http://localhost:51801"},
				{Name: "wemedia", Prefix: "/api/v1/wemedia", URL: "http://localhost:51803"},
			},
			ForwardTimeout: httpclient.DefaultTimeout,
			Breaker:        httpclient.DefaultBreakerConfig(),
		},
		Wemedia: WemediaConfig{
			Port: 51803,
		},
		Revocation: RevocationConfig{
			Backend:    BackendNone,
			SQLitePath: "revocation.db",
			Redis: revocation.RedisConfig{
				Addr:   "localhost:6379",
				Prefix: revocation.DefaultRedisPrefix,
			},
			Schedule: revocation.DefaultSchedule,
		},
	}
}
