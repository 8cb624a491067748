package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/cheng-cc-cc/heima-headline/pkg/logging"
	"github.com/cheng-cc-cc/heima-headline/pkg/reqctx"
)

// DefaultTimeout は下流サービスへのリクエストのデフォルトタイムアウト。
const DefaultTimeout = 30 * time.Second

// headerUserID は下流サービスにユーザーIDを伝播するヘッダー。
const headerUserID = "userId"

// ErrUpstreamStatus は下流サービスが5xxを返したことを表す。
var ErrUpstreamStatus = errors.New("下流サービスがエラーを返しました")

// hopHeaders は転送しないホップバイホップヘッダー。
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// BreakerConfig はサーキットブレーカーの設定。
type BreakerConfig struct {
	// FailureThreshold は連続失敗がこの回数に達するとオープンになる。
	FailureThreshold uint32 `yaml:"failure_threshold"`
	// OpenTimeout はオープンからハーフオープンに移るまでの時間。
	OpenTimeout time.Duration `yaml:"open_timeout"`
	// Interval はクローズ状態で失敗数をリセットする間隔。0の場合はリセットしない。
	Interval time.Duration `yaml:"interval"`
	// HalfOpenRequests はハーフオープン状態で許可するリクエスト数。
	HalfOpenRequests uint32 `yaml:"half_open_requests"`
}

// DefaultBreakerConfig はデフォルトのサーキットブレーカー設定を返す。
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// Config はClientの設定。
type Config struct {
	// Name は下流サービスの名前。ログとブレーカーの識別に使う。
	Name string
	// BaseURL は下流サービスのベースURL（例: "http://wemedia:9002"）。
	BaseURL string
	// Timeout はリクエストのタイムアウト。0以下の場合は DefaultTimeout。
	Timeout time.Duration
	// Breaker はサーキットブレーカーの設定。
	Breaker BreakerConfig
	// Logger はログの出力先。
	Logger *logging.Logger
	// Transport は通信に使うRoundTripper。nilの場合は http.DefaultTransport。
	Transport http.RoundTripper
}

// Client は1つの下流サービスと通信するHTTPクライアント。
type Client struct {
	// name は下流サービスの名前。
	name string
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先サービスのベースURL。
	baseURL *url.URL
	// breaker は下流サービスごとのサーキットブレーカー。
	breaker *gobreaker.CircuitBreaker
	logger  *logging.Logger
}

// New は新しいClientを生成する。
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("下流サービスのURLが不正です: %w", err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("下流サービスのURLが不正です: %q", cfg.BaseURL)
	}
	if cfg.Name == "" {
		cfg.Name = base.Host
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	breakerCfg := cfg.Breaker
	defaults := DefaultBreakerConfig()
	if breakerCfg.FailureThreshold == 0 {
		breakerCfg.FailureThreshold = defaults.FailureThreshold
	}
	if breakerCfg.OpenTimeout <= 0 {
		breakerCfg.OpenTimeout = defaults.OpenTimeout
	}
	if breakerCfg.HalfOpenRequests == 0 {
		breakerCfg.HalfOpenRequests = defaults.HalfOpenRequests
	}

	c := &Client{
		name: cfg.Name,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
			// リダイレクトはクライアントにそのまま返す
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		baseURL: base,
		logger:  cfg.Logger.Named("httpclient").With(zap.String("upstream", cfg.Name)),
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: breakerCfg.HalfOpenRequests,
		Interval:    breakerCfg.Interval,
		Timeout:     breakerCfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerCfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.logger.Warn("サーキットブレーカーの状態が変化しました",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// クライアント側のキャンセルは下流の障害として数えない
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return c, nil
}

// Name は下流サービスの名前を返す。
func (c *Client) Name() string {
	return c.name
}

// State はサーキットブレーカーの現在の状態を返す。
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// targetURL は下流サービスのURLにパスとクエリを連結する。
func (c *Client) targetURL(path, rawQuery string) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(c.baseURL.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	u.RawPath = ""
	u.RawQuery = rawQuery
	return u.String()
}

// do はサーキットブレーカーを経由してリクエストを送信する。
// 5xxのレスポンスは失敗として数えるが、レスポンス自体は呼び出し元に返す。
func (c *Client) do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	_, err := c.breaker.Execute(func() (any, error) {
		r, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		resp = r
		if r.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: status=%d", ErrUpstreamStatus, r.StatusCode)
		}
		return nil, nil
	})
	if resp != nil {
		return resp, nil
	}
	return nil, err
}

// IsBreakerOpen はエラーがサーキットブレーカーによる遮断かを返す。
func IsBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Forward はGinのリクエストを同じパスのまま下流サービスに転送し、レスポンスをそのまま返す。
// 下流サービスに接続できない場合は502、サーキットブレーカーが開いている場合は503を返す。
func (c *Client) Forward(ctx *gin.Context) {
	in := ctx.Request
	target := c.targetURL(in.URL.Path, in.URL.RawQuery)

	out, err := http.NewRequestWithContext(in.Context(), in.Method, target, in.Body)
	if err != nil {
		c.logger.Error("転送リクエストの作成に失敗しました", zap.String("url", target), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "転送リクエストの作成に失敗しました"})
		return
	}
	out.ContentLength = in.ContentLength
	out.Header = in.Header.Clone()
	removeHopHeaders(out.Header)
	if clientIP := ctx.ClientIP(); clientIP != "" {
		out.Header.Set("X-Forwarded-For", clientIP)
	}
	out.Header.Set("X-Forwarded-Host", in.Host)

	resp, err := c.do(out)
	if err != nil {
		switch {
		case IsBreakerOpen(err):
			c.logger.Warn("サーキットブレーカーにより転送を遮断しました", zap.String("path", in.URL.Path))
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "サービスが一時的に利用できません"})
		case errors.Is(err, context.Canceled):
			c.logger.Info("転送中にリクエストがキャンセルされました", zap.String("path", in.URL.Path))
			ctx.Abort()
		default:
			c.logger.Error("下流サービスとの通信に失敗しました", zap.String("url", target), zap.Error(err))
			ctx.JSON(http.StatusBadGateway, gin.H{"error": "内部サービスとの通信に失敗しました"})
		}
		return
	}
	defer resp.Body.Close()

	header := ctx.Writer.Header()
	for key, values := range resp.Header {
		for _, v := range values {
			header.Add(key, v)
		}
	}
	removeHopHeaders(header)

	ctx.Status(resp.StatusCode)
	if _, err := io.Copy(ctx.Writer, resp.Body); err != nil {
		c.logger.Warn("レスポンスの転送が中断されました", zap.String("path", in.URL.Path), zap.Error(err))
	}
}

// removeHopHeaders はホップバイホップヘッダーを取り除く。
func removeHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, name := range strings.Split(f, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

// GetJSON は指定パスにGETリクエストを送信し、レスポンスボディをresultにデシリアライズする。
// コンテキストにIdentityが束縛されている場合は userId ヘッダーで伝播する。
func (c *Client) GetJSON(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.targetURL(path, ""), nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if identity, ok := reqctx.IdentityFromContext(ctx); ok {
		req.Header.Set(headerUserID, identity.UserID)
	}

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("HTTPエラー: status=%d, body=%s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
		}
	}
	return nil
}
