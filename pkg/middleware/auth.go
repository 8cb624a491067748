package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/cheng-cc-cc/heima-headline/pkg/logging"
	"github.com/cheng-cc-cc/heima-headline/pkg/token"
)

const (
	// HeaderToken はクライアントがアクセストークンを送るリクエストヘッダー。
	HeaderToken = "token"
	// HeaderUserID はゲートウェイが検証済みユーザーIDを下流サービスに渡すリクエストヘッダー。
	HeaderUserID = "userId"
	// DefaultBypassMarker はトークン検証を行わないパスに含まれる文字列のデフォルト値。
	DefaultBypassMarker = "/login"
)

// tracerName はトークン検証のスパンを作成するトレーサー名。
const tracerName = "github.com/cheng-cc-cc/heima-headline/pkg/middleware"

// 認証拒否の理由。すべて401として扱われ、レスポンスボディには含めない。
var (
	// ErrMissingToken はトークンヘッダーが無いか空であることを表す。
	ErrMissingToken = errors.New("トークンがありません")
	// ErrMalformedToken はトークンをデコードできなかったことを表す。
	ErrMalformedToken = errors.New("トークンの形式が不正です")
	// ErrExpiredToken はトークンの有効期限切れを表す。
	ErrExpiredToken = errors.New("トークンの有効期限が切れています")
	// ErrInvalidToken は失効や発行者不一致などで拒否されたトークンを表す。
	ErrInvalidToken = errors.New("トークンが無効です")
	// ErrUnknownValidation は検証中の想定外のエラーを表す。
	ErrUnknownValidation = errors.New("トークン検証中に想定外のエラーが発生しました")
)

// StatusClientClosedRequest はクライアントが転送の完了前にリクエストを
// キャンセルした場合に、ログとメトリクスで使うステータスコード。
const StatusClientClosedRequest = 499

// unauthorizedMessage は全ての認証拒否で返すメッセージ。
const unauthorizedMessage = "認証に失敗しました"

// TokenVerifier はトークンのデコードと分類を行う。*token.Validator が実装する。
type TokenVerifier interface {
	Decode(tokenString string) (*token.Claims, error)
	Classify(claims *token.Claims) token.Status
}

var _ TokenVerifier = (*token.Validator)(nil)

// GatewayAuthConfig はGatewayAuthの設定。
type GatewayAuthConfig struct {
	// Verifier はトークンの検証器。
	Verifier TokenVerifier
	// BypassMarkers はパスに含まれていれば検証を省略する文字列。空の場合は DefaultBypassMarker。
	BypassMarkers []string
	// Logger は拒否と処理時間の記録先。nilの場合は出力しない。
	Logger *logging.Logger
	// Now は処理時間の計測に使う時刻源。nilの場合は time.Now。
	Now func() time.Time
}

// RejectReason は認証拒否のエラーをログ・メトリクス用の理由名に変換する。
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return "missing_token"
	case errors.Is(err, ErrMalformedToken):
		return "malformed_token"
	case errors.Is(err, ErrExpiredToken):
		return "expired_token"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	default:
		return "unknown"
	}
}

// gatewayAuth はGatewayAuthの設定済みの状態。
type gatewayAuth struct {
	verifier TokenVerifier
	markers  []string
	logger   *logging.Logger
	now      func() time.Time
	metrics  *Metrics
}

// GatewayAuth はゲートウェイでトークンを検証するGinミドルウェアを返す。
//
// クライアントが送った userId ヘッダーは常に除去される。
// バイパス対象のパスはそのまま転送し、それ以外は token ヘッダーを検証して
// 成功した場合のみ userId ヘッダーを付けて転送する。
// 失敗した場合は401を返し、後続のハンドラは実行しない。
// 転送したリクエストのレスポンスには X-Response-Duration ヘッダーが付与される。
func GatewayAuth(cfg GatewayAuthConfig) gin.HandlerFunc {
	a := &gatewayAuth{
		verifier: cfg.Verifier,
		markers:  cfg.BypassMarkers,
		logger:   cfg.Logger,
		now:      cfg.Now,
		metrics:  GetMetrics(),
	}
	if len(a.markers) == 0 {
		a.markers = []string{DefaultBypassMarker}
	}
	if a.logger == nil {
		a.logger = logging.NewNop()
	}
	if a.now == nil {
		a.now = time.Now
	}
	a.logger = a.logger.Named("gateway_auth")

	return a.handle
}

func (a *gatewayAuth) handle(c *gin.Context) {
	timing := startTiming(a.now())

	// 下流に渡すリクエストは複製し、偽装されたユーザーIDを取り除く
	c.Request = c.Request.Clone(c.Request.Context())
	c.Request.Header.Del(HeaderUserID)

	if a.bypass(c.Request.URL.Path) {
		a.forward(c, timing, "")
		return
	}

	raw := strings.TrimSpace(c.GetHeader(HeaderToken))
	if raw == "" {
		a.reject(c, ErrMissingToken)
		return
	}

	userID, err := a.verify(c.Request.Context(), raw)
	if err != nil {
		a.reject(c, err)
		return
	}

	c.Request.Header.Set(HeaderUserID, userID)
	a.forward(c, timing, userID)
}

// bypass はパスが検証を省略する対象かを返す。
func (a *gatewayAuth) bypass(path string) bool {
	for _, marker := range a.markers {
		if marker != "" && strings.Contains(path, marker) {
			return true
		}
	}
	return false
}

// verify はトークンを検証し、ユーザーIDを返す。
// 検証器のパニックや想定外のエラーは ErrUnknownValidation として拒否する。
func (a *gatewayAuth) verify(ctx context.Context, raw string) (userID string, err error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "gateway.verify_token")
	defer span.End()

	result := "error"
	defer func() {
		if r := recover(); r != nil {
			userID = ""
			err = fmt.Errorf("%w: %v", ErrUnknownValidation, r)
		}
		a.metrics.authValidations.WithLabelValues(result).Inc()
		span.SetAttributes(attribute.String("token.result", result))
		if err != nil {
			span.SetAttributes(attribute.String("auth.reject_reason", RejectReason(err)))
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if a.verifier == nil {
		return "", fmt.Errorf("%w: 検証器が設定されていません", ErrUnknownValidation)
	}

	claims, err := a.verifier.Decode(raw)
	if err != nil {
		if errors.Is(err, token.ErrMalformed) {
			result = token.StatusMalformed.String()
			return "", fmt.Errorf("%w: %w", ErrMalformedToken, err)
		}
		return "", fmt.Errorf("%w: %w", ErrUnknownValidation, err)
	}

	status := a.verifier.Classify(claims)
	result = status.String()
	switch status {
	case token.StatusOK:
		id := strings.TrimSpace(claims.UserID.String())
		if id == "" {
			result = token.StatusInvalid.String()
			return "", ErrInvalidToken
		}
		return id, nil
	case token.StatusExpired:
		return "", ErrExpiredToken
	case token.StatusInvalid:
		return "", ErrInvalidToken
	case token.StatusMalformed:
		return "", ErrMalformedToken
	default:
		return "", fmt.Errorf("%w: 未知の検証結果 %d", ErrUnknownValidation, status)
	}
}

// forward は後続のハンドラを実行し、終了後に処理時間を記録する。
// 後処理は後続がパニックした場合も実行され、パニックはそのまま伝播する。
func (a *gatewayAuth) forward(c *gin.Context, timing *RequestTiming, userID string) {
	tw := &timingWriter{ResponseWriter: c.Writer, timing: timing, now: a.now}
	c.Writer = tw

	defer func() {
		r := recover()
		if r == nil {
			// 何も書き込まれていない場合、Ginは後でヘッダーを送信するためここで付与する
			tw.stamp()
		}

		elapsed, _ := timing.Finish(a.now())
		status := statusOf(c)
		cancelled := errors.Is(c.Request.Context().Err(), context.Canceled)
		switch {
		case r != nil:
			status = http.StatusInternalServerError
		case cancelled:
			// レスポンスを受け取っていないため、成功とは区別して記録する
			status = StatusClientClosedRequest
		}

		a.metrics.requestDuration.
			WithLabelValues(c.Request.Method, strconv.Itoa(status)).
			Observe(elapsed.Seconds())

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
			zap.Bool("cancelled", cancelled),
			zap.String("request_id", GetRequestID(c)),
		}
		if userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}
		switch {
		case r != nil:
			a.logger.Error("転送中にパニックが発生しました", append(fields, zap.Any("panic", r))...)
		case cancelled:
			a.logger.Info("クライアントがリクエストをキャンセルしました", fields...)
		default:
			a.logger.Info("リクエストを転送しました", fields...)
		}

		if r != nil {
			panic(r)
		}
	}()

	c.Next()
}

// reject は401を返し、後続のハンドラを中止する。
func (a *gatewayAuth) reject(c *gin.Context, err error) {
	reason := RejectReason(err)
	a.metrics.authRejections.WithLabelValues(reason).Inc()

	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("reason", reason),
		zap.String("request_id", GetRequestID(c)),
		zap.Error(err),
	}
	if errors.Is(err, ErrUnknownValidation) {
		a.logger.Error("トークン検証中にエラーが発生しました", fields...)
	} else {
		a.logger.Warn("認証に失敗しました", fields...)
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": unauthorizedMessage,
	})
}
