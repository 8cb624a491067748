package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cheng-cc-cc/heima-headline/pkg/logging"
	"github.com/cheng-cc-cc/heima-headline/pkg/reqctx"
)

// PropagateIdentity はゲートウェイが付与した userId ヘッダーを
// リクエスト単位のスコープに束縛するGinミドルウェアを返す。
//
// スコープはpoolから取得され、後続のハンドラが正常終了・エラー・パニックの
// いずれで終わっても解放される。ヘッダーが無い場合は未認証のまま後続に進み、
// 認可の判断はハンドラに委ねる。
func PropagateIdentity(pool *reqctx.Pool, logger *logging.Logger) gin.HandlerFunc {
	if pool == nil {
		pool = reqctx.NewPool()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("propagation")
	metrics := GetMetrics()

	return func(c *gin.Context) {
		pool.Run(c.Request.Context(), func(ctx context.Context, scope *reqctx.Scope) {
			metrics.scopesActive.Inc()
			defer metrics.scopesActive.Dec()

			if userID := strings.TrimSpace(c.GetHeader(HeaderUserID)); userID != "" {
				scope.Set(reqctx.Identity{UserID: userID})
				metrics.scopeBindings.WithLabelValues("bound").Inc()
			} else {
				metrics.scopeBindings.WithLabelValues("anonymous").Inc()
				logger.Debug("userIdヘッダーが無いため未認証で処理します",
					zap.String("path", c.Request.URL.Path),
					zap.String("request_id", GetRequestID(c)),
				)
			}

			orig := c.Request
			c.Request = orig.WithContext(ctx)
			defer func() { c.Request = orig }()

			c.Next()
		})
	}
}

// GetUserID は現在のリクエストに束縛されたユーザーIDを返す。
func GetUserID(c *gin.Context) (string, bool) {
	identity, ok := reqctx.IdentityFromContext(c.Request.Context())
	if !ok {
		return "", false
	}
	return identity.UserID, true
}

// RequireIdentity はユーザーIDが束縛されていないリクエストを401で拒否するGinミドルウェアを返す。
// PropagateIdentity の後に登録すること。
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetUserID(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": unauthorizedMessage,
			})
			return
		}
		c.Next()
	}
}
