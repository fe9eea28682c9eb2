package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy configures WithCORS. An origin of "*" matches everything; with
// AllowCredentials the request origin is echoed instead of "*".
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

type corsRules struct {
	origins     map[string]bool
	anyOrigin   bool
	credentials bool
	methods     string
	headers     string
	maxAge      string
}

func (p CORSPolicy) compile() corsRules {
	rules := corsRules{origins: map[string]bool{}, credentials: p.AllowCredentials}
	for _, o := range trimAll(p.AllowedOrigins) {
		if o == "*" {
			rules.anyOrigin = true
			continue
		}
		rules.origins[strings.ToLower(o)] = true
	}
	methods := trimAll(p.AllowedMethods)
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	headers := trimAll(p.AllowedHeaders)
	if len(headers) == 0 {
		headers = []string{"Content-Type", RequestIDHeader}
	}
	rules.methods = strings.Join(methods, ", ")
	rules.headers = strings.Join(headers, ", ")
	if secs := int(p.MaxAge / time.Second); secs > 0 {
		rules.maxAge = strconv.Itoa(secs)
	}
	return rules
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin.
func (c corsRules) allowOrigin(origin string) (string, bool) {
	if c.origins[strings.ToLower(origin)] {
		return origin, true
	}
	if c.anyOrigin {
		if c.credentials {
			return origin, true
		}
		return "*", true
	}
	return "", false
}

// WithCORS answers preflights and decorates responses for allowed origins.
// It is a no-op when no origins are configured.
func WithCORS(p CORSPolicy) Middleware {
	rules := p.compile()
	if !rules.anyOrigin && len(rules.origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allow, ok := rules.allowOrigin(origin)
			if origin == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allow)
			h.Set("Access-Control-Allow-Methods", rules.methods)
			h.Set("Access-Control-Allow-Headers", rules.headers)
			if rules.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if rules.maxAge != "" {
				h.Set("Access-Control-Max-Age", rules.maxAge)
			}
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
