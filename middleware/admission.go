package middleware

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/staynest/gatekeep"
	"github.com/staynest/gatekeep/ratelimit"
)

// KeyFunc derives the admission key for a request. It may return a request
// carrying extra context values; returning an empty key rejects with 400.
type KeyFunc func(r *http.Request) (string, *http.Request)

// ClientIP keys admission on the caller address and attaches it to the
// request context with gatekeep.WithClientIP. When trustForwarded is set
// the first X-Forwarded-For hop wins; only enable it behind a proxy that
// overwrites the header.
func ClientIP(trustForwarded bool) KeyFunc {
	return func(r *http.Request) (string, *http.Request) {
		ip := remoteIP(r, trustForwarded)
		if ip == "" {
			return "", r
		}
		return ip, r.WithContext(gatekeep.WithClientIP(r.Context(), ip))
	}
}

// Admission runs engine.Admit for operation before next. Rejected callers
// get 429 with Retry-After in whole seconds; store failures get 503. The
// wrapped handler never runs on either.
func Admission(engine *gatekeep.Engine, operation string, key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = ClientIP(false)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			k, req := key(r)
			if k == "" {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}

			err := engine.Admit(req.Context(), operation, k)
			switch {
			case err == nil:
				next.ServeHTTP(w, req)
			case errors.Is(err, gatekeep.ErrRateLimitExceeded):
				writeRateLimited(w, err)
			default:
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			}
		})
	}
}

func writeRateLimited(w http.ResponseWriter, err error) {
	var exceeded *ratelimit.ExceededError
	if errors.As(err, &exceeded) {
		w.Header().Set("Retry-After", strconv.Itoa(exceeded.RetryAfterSeconds()))
	}
	http.Error(w, "too many requests", http.StatusTooManyRequests)
}

func remoteIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return ""
}
