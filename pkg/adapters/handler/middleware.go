package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/wadjakorntonsri/go-reel-lookup/pkg/config"
)

type ctxKey string

const operatorKey ctxKey = "operator"

type Middleware struct {
	jwtSecret []byte
	proxies   proxyList
	log       *zap.Logger
}

func NewMiddleware(cfg *config.Config, log *zap.Logger) *Middleware {
	proxies, err := cfg.Proxies()
	if err != nil {
		log.Warn("ignoring TRUSTED_PROXIES", zap.Error(err))
		proxies = nil
	}
	return &Middleware{
		jwtSecret: []byte(cfg.JWTSecret),
		proxies:   proxies,
		log:       log,
	}
}

// AuthMiddleware verifies the operator JWT from the Authorization header or
// the auth_token cookie
func (m *Middleware) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := tokenFromRequest(r)
		if tokenString == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
			return
		}

		subject, err := parseToken(m.jwtSecret, tokenString)
		if err != nil {
			m.log.Debug("rejected operator token", zap.String("path", r.URL.Path), zap.Error(err))
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
			return
		}

		ctx := context.WithValue(r.Context(), operatorKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Operator returns the authenticated subject, if any.
func Operator(ctx context.Context) string {
	s, _ := ctx.Value(operatorKey).(string)
	return s
}

// RequestLogger logs method, path, status and latency of every request
// except health checks.
func (m *Middleware) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		m.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("ip", m.proxies.clientIP(r)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
