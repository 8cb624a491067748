package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cheng-cc-cc/heima-headline/pkg/logging"
)

// EnvConfigPath は設定ファイルのパスを指定する環境変数。
const EnvConfigPath = "HEADLINE_CONFIG"

// LookupFunc は環境変数を参照する関数。os.LookupEnv と同じ形式。
type LookupFunc func(key string) (string, bool)

// Load はconfigPath（空の場合は探索）と環境変数から設定を読み込む。
func Load(configPath string) (*Config, error) {
	return LoadWithEnv(configPath, os.LookupEnv)
}

// LoadWithEnv は環境変数の参照先を指定して設定を読み込む。
//
// 読み込み順:
//  1. デフォルト値
//  2. YAMLファイル（引数、HEADLINE_CONFIG、./config.yaml の順に探索）
//  3. 環境変数
//  4. ファイルからの秘密情報の読み込み
//  5. 検証
func LoadWithEnv(configPath string, lookup LookupFunc) (*Config, error) {
	cfg := Defaults()

	if path := discoverConfigFile(configPath, lookup); path != "" {
		if err := loadYAMLFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("設定ファイル %s の読み込みに失敗: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg, lookup); err != nil {
		return nil, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}

	if cfg.Token.Secret == "" && cfg.Token.SecretFile != "" {
		data, err := os.ReadFile(cfg.Token.SecretFile)
		if err != nil {
			return nil, fmt.Errorf("token.secret_file の読み込みに失敗: %w", err)
		}
		cfg.Token.Secret = strings.TrimSpace(string(data))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定が不正です: %w", err)
	}
	return &cfg, nil
}

// discoverConfigFile は設定ファイルのパスを探索する。見つからない場合は空文字を返す。
func discoverConfigFile(configPath string, lookup LookupFunc) string {
	if configPath != "" {
		return configPath
	}
	if v, ok := lookup(EnvConfigPath); ok && v != "" {
		return v
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}

// loadYAMLFile はYAMLファイルを読み込む。ファイルに無い項目は現在の値を維持する。
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides は環境変数で設定を上書きする。
func applyEnvOverrides(cfg *Config, lookup LookupFunc) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("JWT_SECRET"); ok {
		cfg.Token.Secret = v
	}
	if v, ok := get("JWT_ISSUER"); ok {
		cfg.Token.Issuer = v
	}
	if v, ok := get("GATEWAY_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GATEWAY_PORT: %w", err)
		}
		cfg.Gateway.Port = port
	}
	if v, ok := get("WEMEDIA_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WEMEDIA_PORT: %w", err)
		}
		cfg.Wemedia.Port = port
	}
	if v, ok := get("FRONTEND_URL"); ok {
		cfg.Gateway.AllowedOrigins = splitList(v)
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.Log.Level = logging.ParseLevel(v)
	}
	if v, ok := get("LOG_FORMAT"); ok {
		cfg.Log.Format = logging.Format(strings.ToLower(v))
	}
	if v, ok := get("REVOCATION_BACKEND"); ok {
		cfg.Revocation.Backend = strings.ToLower(v)
	}
	if v, ok := get("SQLITE_PATH"); ok {
		cfg.Revocation.SQLitePath = v
	}
	if v, ok := get("REDIS_ADDR"); ok {
		cfg.Revocation.Redis.Addr = v
	}
	if v, ok := get("REDIS_PASSWORD"); ok {
		cfg.Revocation.Redis.Password = v
	}

	for i := range cfg.Gateway.Upstreams {
		if v, ok := get(upstreamEnvKey(cfg.Gateway.Upstreams[i].Name)); ok {
			cfg.Gateway.Upstreams[i].URL = v
		}
	}
	return nil
}

// upstreamEnvKey はサービス名からURLを上書きする環境変数名を返す。
func upstreamEnvKey(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_URL"
}

// splitList はカンマ区切りの文字列を分割する。
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
