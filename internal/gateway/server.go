package gateway

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cheng-cc-cc/heima-headline/internal/config"
	"github.com/cheng-cc-cc/heima-headline/pkg/httpclient"
	"github.com/cheng-cc-cc/heima-headline/pkg/logging"
	"github.com/cheng-cc-cc/heima-headline/pkg/middleware"
)

// shutdownTimeout はシャットダウン時に処理中のリクエストを待つ時間。
const shutdownTimeout = 10 * time.Second

// upstreamRoute はパスの接頭辞と転送先の組。
type upstreamRoute struct {
	prefix string
	client *httpclient.Client
}

// matches はパスがこの接頭辞の配下かを返す。
func (r upstreamRoute) matches(path string) bool {
	if !strings.HasPrefix(path, r.prefix) {
		return false
	}
	rest := path[len(r.prefix):]
	return rest == "" || strings.HasPrefix(rest, "/") || strings.HasSuffix(r.prefix, "/")
}

// Server はAPIゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port int
	// routes は接頭辞の長い順に並んだ転送先。
	routes []upstreamRoute
	logger *logging.Logger
}

// options はNewServerの追加設定。
type options struct {
	transport http.RoundTripper
	now       func() time.Time
}

// Option はNewServerの追加設定を変更する。
type Option func(*options)

// WithTransport は下流サービスとの通信に使うRoundTripperを差し替える。
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithClock は処理時間の計測に使う時刻源を差し替える。
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewServer は新しいGatewayサーバーを生成する。
func NewServer(cfg *config.Config, verifier middleware.TokenVerifier, logger *logging.Logger, opts ...Option) (*Server, error) {
	if verifier == nil {
		return nil, errors.New("トークン検証器が設定されていません")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	routes := make([]upstreamRoute, 0, len(cfg.Gateway.Upstreams))
	for _, u := range cfg.Gateway.Upstreams {
		client, err := httpclient.New(httpclient.Config{
			Name:      u.Name,
			BaseURL:   u.URL,
			Timeout:   cfg.Gateway.ForwardTimeout,
			Breaker:   cfg.Gateway.Breaker,
			Logger:    logger,
			Transport: o.transport,
		})
		if err != nil {
			return nil, fmt.Errorf("転送先 %s の初期化に失敗: %w", u.Name, err)
		}
		routes = append(routes, upstreamRoute{prefix: u.Prefix, client: client})
	}
	slices.SortStableFunc(routes, func(a, b upstreamRoute) int {
		return cmp.Compare(len(b.prefix), len(a.prefix))
	})

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger))
	router.Use(middleware.Recovery(logger))

	s := &Server{
		router: router,
		port:   cfg.Gateway.Port,
		routes: routes,
		logger: logger.Named("gateway"),
	}
	s.setupRoutes(cfg, verifier, logger, o.now)

	return s, nil
}

// Handler はサーバーのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Gatewayサービスを起動します", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("Gatewayサービスを停止します")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("シャットダウンに失敗: %w", err)
	}
	return nil
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes(cfg *config.Config, verifier middleware.TokenVerifier, logger *logging.Logger, now func() time.Time) {
	// 認証不要のエンドポイント
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
	s.router.GET("/ready", s.handleReady())
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 下流サービスへの転送（ログインパスを除きトークン必須）
	api := s.router.Group("/api/v1")
	api.Use(middleware.CORS(cfg.Gateway.AllowedOrigins))
	api.Use(middleware.GatewayAuth(middleware.GatewayAuthConfig{
		Verifier:      verifier,
		BypassMarkers: cfg.Gateway.BypassMarkers,
		Logger:        logger,
		Now:           now,
	}))
	api.Any("/*path", s.handleForward())
}

// route はパスに最も長く一致する転送先を返す。
func (s *Server) route(path string) (upstreamRoute, bool) {
	for _, r := range s.routes {
		if r.matches(path) {
			return r, true
		}
	}
	return upstreamRoute{}, false
}

// handleForward はリクエストを下流サービスに転送するハンドラを返す。
func (s *Server) handleForward() gin.HandlerFunc {
	return func(c *gin.Context) {
		r, ok := s.route(c.Request.URL.Path)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "転送先が見つかりません"})
			return
		}
		r.client.Forward(c)
	}
}

// handleReady は全ての下流サービスの疎通を確認するハンドラを返す。
func (s *Server) handleReady() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		upstreams := make(gin.H, len(s.routes))
		for _, r := range s.routes {
			if err := r.client.GetJSON(ctx, "/health", nil); err != nil {
				status = http.StatusServiceUnavailable
				upstreams[r.client.Name()] = "unavailable"
				s.logger.Warn("下流サービスの疎通確認に失敗しました",
					zap.String("upstream", r.client.Name()),
					zap.Error(err),
				)
				continue
			}
			upstreams[r.client.Name()] = "ok"
		}

		c.JSON(status, gin.H{"status": http.StatusText(status), "upstreams": upstreams})
	}
}
