package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/cheng-cc-cc/heima-headline/pkg/logging"
)

// Validate は設定を検証し、全ての問題をまとめて返す。
// シークレットはトークンを検証または発行するプロセスだけが ValidateToken で検証する。
func (c *Config) Validate() error {
	var errs []error

	if c.Token.TTL <= 0 {
		errs = append(errs, errors.New("token.ttl は正の値である必要があります"))
	}

	switch c.Log.Format {
	case logging.FormatJSON, logging.FormatConsole, "":
	default:
		errs = append(errs, fmt.Errorf("log.format %q は未対応です", c.Log.Format))
	}

	if err := validatePort("gateway.port", c.Gateway.Port); err != nil {
		errs = append(errs, err)
	}
	if err := validatePort("wemedia.port", c.Wemedia.Port); err != nil {
		errs = append(errs, err)
	}

	seen := make(map[string]bool)
	for i, u := range c.Gateway.Upstreams {
		field := fmt.Sprintf("gateway.upstreams[%d]", i)
		if u.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name が設定されていません", field))
		} else if seen[u.Name] {
			errs = append(errs, fmt.Errorf("%s.name %q が重複しています", field, u.Name))
		}
		seen[u.Name] = true
		if !strings.HasPrefix(u.Prefix, "/") {
			errs = append(errs, fmt.Errorf("%s.prefix は / で始まる必要があります", field))
		}
		if parsed, err := url.Parse(u.URL); err != nil || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("%s.url %q が不正です", field, u.URL))
		}
	}

	switch c.Revocation.Backend {
	case BackendNone, "":
	case BackendSQLite:
		if c.Revocation.SQLitePath == "" {
			errs = append(errs, errors.New("revocation.sqlite_path が設定されていません"))
		}
	case BackendRedis:
		if c.Revocation.Redis.Addr == "" {
			errs = append(errs, errors.New("revocation.redis.addr が設定されていません"))
		}
	default:
		errs = append(errs, fmt.Errorf("revocation.backend %q は未対応です", c.Revocation.Backend))
	}

	return errors.Join(errs...)
}

// ValidateToken はトークンの検証と発行に必要な設定を検証する。
func (c *Config) ValidateToken() error {
	if c.Token.Secret == "" {
		return errors.New("token.secret（JWT_SECRET）が設定されていません")
	}
	return nil
}

// validatePort はポート番号の範囲を検証する。
func validatePort(field string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s %d は範囲外です", field, port)
	}
	return nil
}
