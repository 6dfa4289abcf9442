package security

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the real client IP address from the request, for use as
// the rate-limiter identifier and the fingerprint address.
//
// Only enable trustProxy behind a trusted reverse proxy: X-Forwarded-For is
// client-controlled otherwise. trustedProxyCount is how many proxies to
// trust from the right of the X-Forwarded-For list; zero assumes one.
func ClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := ipFromForwardedFor(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if ip := validIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	return ipFromRemoteAddr(r.RemoteAddr)
}

// ipFromForwardedFor picks the client entry out of an X-Forwarded-For list.
// The list reads "client, proxy1, proxy2"; the rightmost entries are the
// proxies we control, so the client sits trustedProxyCount+1 from the end.
func ipFromForwardedFor(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}

	ips := strings.Split(xff, ",")
	proxyCount := trustedProxyCount
	if proxyCount == 0 {
		proxyCount = 1
	}
	clientIndex := len(ips) - proxyCount - 1
	if clientIndex < 0 {
		clientIndex = 0
	}

	return validIP(strings.TrimSpace(ips[clientIndex]))
}

// validIP returns s when it parses as an IP address, otherwise "".
func validIP(s string) string {
	if s != "" && net.ParseIP(s) != nil {
		return s
	}
	return ""
}

// ipFromRemoteAddr extracts the IP of the direct connection.
func ipFromRemoteAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
