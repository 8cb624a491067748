package wemedia

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cheng-cc-cc/heima-headline/pkg/logging"
	"github.com/cheng-cc-cc/heima-headline/pkg/middleware"
	"github.com/cheng-cc-cc/heima-headline/pkg/reqctx"
)

// shutdownTimeout はシャットダウン時に処理中のリクエストを待つ時間。
const shutdownTimeout = 10 * time.Second

// ErrNoIdentity は認証済みユーザーが束縛されていないことを表す。
var ErrNoIdentity = errors.New("ユーザーIDが取得できません")

// Server は自媒体サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port int
	// pool はリクエスト単位のスコープを提供する。
	pool   *reqctx.Pool
	logger *logging.Logger
}

// NewServer は新しい自媒体サーバーを生成する。
func NewServer(port int, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger))
	router.Use(middleware.Recovery(logger))

	s := &Server{
		router: router,
		port:   port,
		pool:   reqctx.NewPool(),
		logger: logger.Named("wemedia"),
	}
	s.setupRoutes(logger)
	return s
}

// Handler はサーバーのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Pool はリクエスト単位のスコープのPoolを返す。
func (s *Server) Pool() *reqctx.Pool {
	return s.pool
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
		s.logger.Info("自媒体サービスを起動します", zap.Int("port", s.port))
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
	s.logger.Info("自媒体サービスを停止します")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("シャットダウンに失敗: %w", err)
	}
	return nil
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes(logger *logging.Logger) {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "wemedia"})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api/v1/wemedia")
	api.Use(middleware.PropagateIdentity(s.pool, logger), middleware.RequireIdentity())
	{
		api.GET("/me", s.handleGetCurrentUser())
	}
}

// handleGetCurrentUser は認証済みユーザーの情報を返すハンドラを返す。
// 未認証のリクエストはRequireIdentityで拒否済みのため、ここでは常にユーザーが束縛されている。
func (s *Server) handleGetCurrentUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := currentUserID(c.Request.Context())
		if err != nil {
			s.logger.Error("認証済みのリクエストでユーザーIDが取得できません",
				zap.String("request_id", middleware.GetRequestID(c)),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "内部エラーが発生しました"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	}
}

// currentUserID はコンテキストに束縛されたユーザーIDを返す。
// 業務処理はGinに依存せずこの関数でユーザーを参照する。
func currentUserID(ctx context.Context) (string, error) {
	identity, ok := reqctx.IdentityFromContext(ctx)
	if !ok {
		return "", ErrNoIdentity
	}
	return identity.UserID, nil
}
