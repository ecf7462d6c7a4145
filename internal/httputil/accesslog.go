package httputil

import (
	"fmt"
	"net/http"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiCyan   = "\033[36m"
	ansiYellow = "\033[33m"
	ansiGreen  = "\033[1;32m"
	ansiRed    = "\033[1;31m"
)

// statusRecorder remembers the status code and body size written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.size += n
	return n, err
}

// Flush passes through so streamed responses are not buffered by the log.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// colorStatus renders code green for 2xx, yellow for 3xx and red for errors.
func colorStatus(code int) string {
	var c string
	switch code / 100 {
	case 2:
		c = ansiGreen
	case 3:
		c = ansiYellow
	case 4, 5:
		c = ansiRed
	default:
		return fmt.Sprint(code)
	}
	return fmt.Sprintf("%s%d%s", c, code, ansiReset)
}

// AccessLog wraps next so every request is logged through logf with its
// status, method, URI, response size and latency.
func AccessLog(logf func(format string, v ...interface{}), next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logf("[%s] %s %s%s%s %dB %.2fms",
			colorStatus(rec.status), r.Method, ansiCyan, r.RequestURI, ansiReset,
			rec.size, float64(time.Since(start).Microseconds())/1e3)
	})
}
