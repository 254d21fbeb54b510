package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// StatusRecorder はHTTPステータスコードをメトリクスに記録するインターフェース。
// metrics.Collectorが満たす。
type StatusRecorder interface {
	RecordHTTPStatus(statusCode int)
}

// responseRecorder はhttp.ResponseWriterをラップし、ステータスコードと書き込みバイト数を記録する。
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rr *responseRecorder) WriteHeader(code int) {
	if rr.status == 0 {
		rr.status = code
	}
	rr.ResponseWriter.WriteHeader(code)
}

// Write はWriteHeader未呼び出しの場合に200を記録してから書き込む。
func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	n, err := rr.ResponseWriter.Write(b)
	rr.bytes += n
	return n, err
}

// statusCode はハンドラーが何も書かなかった場合も200として扱う。
func (rr *responseRecorder) statusCode() int {
	if rr.status == 0 {
		return http.StatusOK
	}
	return rr.status
}

// accessLogLevel は5xxをERROR、4xxをWARN、それ以外をINFOとする。
func accessLogLevel(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// NewLoggingMiddleware はリクエストごとに1行のJSONアクセスログを出力するミドルウェアを返す。
// ログにはmethod、path、status、bytes、duration_ms、request_id、member_id（認証済みの場合）を含む。
// recorderがnilでなければステータスコードをメトリクスにも記録する。
func NewLoggingMiddleware(logger *slog.Logger, recorder StatusRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w}

			// 内側の認証ミドルウェアが確定したメンバーIDを受け取る
			holder := &memberHolder{}
			r = r.WithContext(withMemberHolder(r.Context(), holder))

			next.ServeHTTP(rec, r)

			status := rec.statusCode()
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", rec.bytes),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			}
			if requestID := RequestIDFromContext(r.Context()); requestID != "" {
				attrs = append(attrs, slog.String("request_id", requestID))
			}
			if memberID, err := MemberIDFromContext(r.Context()); err == nil {
				attrs = append(attrs, slog.Int64("member_id", memberID))
			} else if holder.memberID > 0 {
				attrs = append(attrs, slog.Int64("member_id", holder.memberID))
			}

			if recorder != nil {
				recorder.RecordHTTPStatus(status)
			}

			logger.LogAttrs(r.Context(), accessLogLevel(status), "http_request", attrs...)
		})
	}
}
