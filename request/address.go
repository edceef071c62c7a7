package request

import (
	"net/http"
	"strings"
)

const (
	forwardedForHeader = "X-Forwarded-For"
	realIpHeader       = "X-Real-IP"
)

// ClientAddress extracts the requester address. Proxy headers are honored
// only when the deployment is explicitly configured as sitting behind a
// trusted proxy, otherwise they are spoofable and the peer address is used.
func ClientAddress(req *http.Request, trustProxyHeaders bool) string {
	if !trustProxyHeaders {
		return req.RemoteAddr
	}

	forwardedFor := req.Header.Get(forwardedForHeader)
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		return strings.TrimSpace(first)
	}

	realIp := strings.TrimSpace(req.Header.Get(realIpHeader))
	if realIp != "" {
		return realIp
	}

	return req.RemoteAddr
}
