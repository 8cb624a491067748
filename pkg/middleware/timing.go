package middleware

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderResponseDuration はゲートウェイでの処理時間をクライアントに返すレスポンスヘッダー。
const HeaderResponseDuration = "X-Response-Duration"

// RequestTiming は1つのリクエストの処理開始時刻を保持する。
// リクエストごとに生成され、他のリクエストと共有されることはない。
type RequestTiming struct {
	start    time.Time
	finished atomic.Bool
}

// startTiming は開始時刻を記録する。
func startTiming(now time.Time) *RequestTiming {
	return &RequestTiming{start: now}
}

// Elapsed は開始からnowまでの経過時間を返す。負の値にはならない。
func (t *RequestTiming) Elapsed(now time.Time) time.Duration {
	d := now.Sub(t.start)
	if d < 0 {
		return 0
	}
	return d
}

// Finish は経過時間を確定させる。成功するのは最初の1回だけ。
func (t *RequestTiming) Finish(now time.Time) (time.Duration, bool) {
	if !t.finished.CompareAndSwap(false, true) {
		return 0, false
	}
	return t.Elapsed(now), true
}

// FormatDuration はミリ秒の整数に "ms" を付けた形式で経過時間を返す。
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
}

// timingWriter はレスポンスヘッダーが送信される直前に処理時間ヘッダーを付与する。
// 下流のレスポンスはforwardの途中で書き込まれるため、後処理ではヘッダーを変更できない。
type timingWriter struct {
	gin.ResponseWriter
	timing  *RequestTiming
	now     func() time.Time
	stamped bool
}

var _ gin.ResponseWriter = (*timingWriter)(nil)

// stamp は処理時間ヘッダーを1度だけ設定する。
func (w *timingWriter) stamp() {
	if w.stamped || w.ResponseWriter.Written() {
		return
	}
	w.stamped = true
	w.ResponseWriter.Header().Set(HeaderResponseDuration, FormatDuration(w.timing.Elapsed(w.now())))
}

// WriteHeader はステータスコードの設定前にヘッダーを付与する。
func (w *timingWriter) WriteHeader(code int) {
	w.stamp()
	w.ResponseWriter.WriteHeader(code)
}

// WriteHeaderNow はヘッダー送信前にヘッダーを付与する。
func (w *timingWriter) WriteHeaderNow() {
	w.stamp()
	w.ResponseWriter.WriteHeaderNow()
}

// Write は最初の書き込み前にヘッダーを付与する。
func (w *timingWriter) Write(b []byte) (int, error) {
	w.stamp()
	return w.ResponseWriter.Write(b)
}

// WriteString は最初の書き込み前にヘッダーを付与する。
func (w *timingWriter) WriteString(s string) (int, error) {
	w.stamp()
	return w.ResponseWriter.WriteString(s)
}

// Flush はヘッダーを付与してからフラッシュする。
func (w *timingWriter) Flush() {
	w.stamp()
	w.ResponseWriter.Flush()
}

// statusOf は記録用のステータスコードを返す。未書き込みの場合は200として扱う。
func statusOf(c *gin.Context) int {
	if status := c.Writer.Status(); status > 0 {
		return status
	}
	return http.StatusOK
}
