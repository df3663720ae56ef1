package web

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// OriginPolicy decides which browser origins may drive the local API.
// Requests without an Origin header come from non-browser clients and are
// allowed. Loopback origins on any port are allowed, as are the configured
// UI origins.
type OriginPolicy struct {
	allowed map[string]bool
}

// NewOriginPolicy allows loopback origins plus origins, each given as
// scheme://host[:port].
func NewOriginPolicy(origins ...string) OriginPolicy {
	p := OriginPolicy{allowed: make(map[string]bool)}
	for _, o := range origins {
		o = strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
		if o != "" {
			p.allowed[o] = true
		}
	}
	return p
}

// Allowed reports whether r's Origin may use the API.
func (p OriginPolicy) Allowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if p.allowed[strings.ToLower(u.Scheme+"://"+u.Host)] {
		return true
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Guard rejects state-changing requests from disallowed origins with 403.
func (p OriginPolicy) Guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			if !p.Allowed(r) {
				writeError(w, http.StatusForbidden, "origin not allowed")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
