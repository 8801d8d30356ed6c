package mw

import (
	"net/http"

	"github.com/emoradar/emoradar/internal/logger"
	"github.com/emoradar/emoradar/internal/utils"
)

// AllowOnlyCIDRS allows only the given IPs/CIDRs. An empty list passes everything through.
// trustProxy resolves the client from proxy headers (cloudflared, nginx).
func AllowOnlyCIDRS(allowed []string, trustProxy bool, log logger.Logger) func(http.Handler) http.Handler {
	m := utils.NewIPMatcher(allowed)
	if m.IsEmpty() {
		log.Debug("AllowOnlyCIDRS: empty matcher, passthrough mode")
		return func(next http.Handler) http.Handler { return next }
	}

	log.Debugf("AllowOnlyCIDRS: initialized with %d rules, trustProxy=%v", m.Len(), trustProxy)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r, trustProxy)
			if !m.Allow(ip) {
				log.Debug("AllowOnlyCIDRS: rejected",
					logger.String("ip", ip),
					logger.String("remote_addr", r.RemoteAddr),
					logger.String("path", r.URL.Path))
				writeForbidden(w, "address not allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
