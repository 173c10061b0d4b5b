package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"clipriver/internal/observability/logging"
)

const (
	requestIDHeader = "X-Request-Id"
	videoIDHeader   = "X-Video-Id"
)

type idGenerator func() string

// requestIDMiddleware tags every request with a correlation identifier.
// Inbound X-Request-Id values are preserved; otherwise a fresh one is
// generated. When a client names the video it is acting on via X-Video-Id,
// that identifier travels with the request context too so playback and
// upload logs can be grouped per video.
func requestIDMiddleware(next http.Handler) http.Handler {
	return requestIDMiddlewareWithGenerator(next, newRequestID)
}

func requestIDMiddlewareWithGenerator(next http.Handler, generate idGenerator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = generate()
		}

		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		if videoID := strings.TrimSpace(r.Header.Get(videoIDHeader)); videoID != "" {
			ctx = logging.ContextWithVideoID(ctx, videoID)
		}
		base := logging.WithComponent(slog.Default(), "http")
		ctx = logging.ContextWithLogger(ctx, logging.WithContext(ctx, base))

		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newRequestID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
