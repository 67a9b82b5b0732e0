package server

import (
	"log"
	"net/http"
	"strings"

	"github.com/felixge/httpsnoop"
)

// loggingMiddleware records method, path, status and duration for API
// requests. Websocket upgrades are passed through untouched: httpsnoop's
// wrapped writer would hide the http.Hijacker the upgrader needs.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}
		m := httpsnoop.CaptureMetrics(next, w, r)
		log.Printf("handled method=%s url=%s status=%d duration=%s", r.Method, r.URL, m.Code, m.Duration)
	})
}
