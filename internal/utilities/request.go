package utilities

import (
	"net"
	"net/http"
)

// GetIPAddress returns the client address of the request. Forwarded-for
// headers are resolved by the xff middleware before this is called, so only
// RemoteAddr is consulted here.
func GetIPAddress(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
