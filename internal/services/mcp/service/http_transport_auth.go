package service

import (
	"crypto/subtle"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"

	apperrors "github.com/louisbranch/talespin/internal/platform/errors"
	"github.com/louisbranch/talespin/internal/services/mcp/grant"
)

// hostGuard admits requests whose Host and Origin name a loopback address
// or one of the configured hosts. It blocks DNS rebinding against a local
// server.
type hostGuard map[string]struct{}

func newHostGuard(hosts []string) hostGuard {
	g := make(hostGuard, len(hosts))
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			g[h] = struct{}{}
		}
	}
	return g
}

func (g hostGuard) check(r *http.Request) error {
	if r == nil {
		return fmt.Errorf("invalid request")
	}
	if !g.allows(r.Host) {
		return fmt.Errorf("invalid host")
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return nil
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" || !g.allows(parsed.Host) {
		return fmt.Errorf("invalid origin")
	}
	return nil
}

func (g hostGuard) allows(hostport string) bool {
	host := hostname(hostport)
	if host == "" {
		return false
	}
	if host == "localhost" {
		return true
	}
	if addr, err := netip.ParseAddr(host); err == nil && addr.IsLoopback() {
		return true
	}
	_, ok := g[host]
	return ok
}

// hostname strips the port and IPv6 brackets from a Host or Origin value.
func hostname(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.ToLower(host)
	}
	if strings.Count(hostport, ":") > 1 && !strings.HasPrefix(hostport, "[") {
		return strings.ToLower(hostport)
	}
	if strings.ContainsAny(hostport, ":[]") {
		if strings.HasPrefix(hostport, "[") && strings.HasSuffix(hostport, "]") {
			return strings.ToLower(hostport[1 : len(hostport)-1])
		}
		return ""
	}
	return strings.ToLower(hostport)
}

// handleHealth handles GET /mcp/health for health checks.
func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := t.hosts.check(r); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Printf("Failed to write health response: %v", err)
	}
}

// authorizeRequest requires the configured bearer token or a valid access
// grant. With neither configured every request that passed the host check
// is admitted.
func (t *HTTPTransport) authorizeRequest(w http.ResponseWriter, r *http.Request) bool {
	if t.apiToken == "" && t.grants == nil {
		return true
	}
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		writeUnauthorized(w, "authorization required")
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		writeUnauthorized(w, "authorization required")
		return false
	}
	if t.apiToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(t.apiToken)) == 1 {
		return true
	}
	if t.grants != nil {
		claims, err := grant.Validate(token, *t.grants)
		if err == nil {
			log.Printf("mcp access grant admitted: sub=%s jti=%s", claims.Subject, claims.JWTID)
			return true
		}
		writeUnauthorized(w, fmt.Sprintf("invalid access grant [%s]", apperrors.CodeOf(err)))
		return false
	}
	writeUnauthorized(w, "invalid access token")
	return false
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="talespin-mcp"`)
	http.Error(w, message, http.StatusUnauthorized)
}
