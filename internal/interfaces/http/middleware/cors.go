package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig describes the cross-origin policy for browser clients.
type CORSConfig struct {
	// AllowedOrigins lists acceptable Origin values.  "*" allows any.
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	// MaxAge is how long browsers may cache a preflight answer, in seconds.
	MaxAge int
}

// DefaultCORSConfig allows the standard verbs plus the actor headers from
// any origin.  Production deployments narrow AllowedOrigins.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", HeaderUserID, HeaderActorRole},
		MaxAge:         600,
	}
}

// CORSMiddleware answers preflight requests and stamps CORS headers on
// cross-origin responses.
type CORSMiddleware struct {
	cfg        CORSConfig
	allowAny   bool
	origins    map[string]bool
	methodList string
	headerList string
}

// NewCORSMiddleware creates a CORSMiddleware from cfg.
func NewCORSMiddleware(cfg CORSConfig) *CORSMiddleware {
	m := &CORSMiddleware{
		cfg:        cfg,
		origins:    make(map[string]bool, len(cfg.AllowedOrigins)),
		methodList: strings.Join(cfg.AllowedMethods, ", "),
		headerList: strings.Join(cfg.AllowedHeaders, ", "),
	}
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			m.allowAny = true
		}
		m.origins[o] = true
	}
	return m
}

// Handler applies the CORS policy around next.
func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !m.allowAny && !m.origins[origin] {
			next.ServeHTTP(w, r)
			return
		}

		allowed := origin
		if m.allowAny {
			allowed = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", allowed)
		w.Header().Add("Vary", "Origin")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", m.methodList)
			w.Header().Set("Access-Control-Allow-Headers", m.headerList)
			if m.cfg.MaxAge > 0 {
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(m.cfg.MaxAge))
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
