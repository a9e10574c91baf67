package server

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/jrsteele09/go-admin-auth/sessions"
	"github.com/mssola/useragent"
)

// clientInfo describes the caller for session records and security alerts.
func (s *Server) clientInfo(r *http.Request) sessions.ClientInfo {
	info := sessions.ClientInfo{IP: s.clientIP(r)}

	raw := r.UserAgent()
	if raw == "" {
		return info
	}

	ua := useragent.New(raw)
	name, version := ua.Browser()
	if major, _, ok := strings.Cut(version, "."); ok {
		version = major
	}
	info.Device = strings.TrimSpace(name + " " + version)
	switch {
	case ua.Bot():
		info.Device = "Bot " + info.Device
	case ua.Mobile():
		info.Device += " (mobile)"
	}
	info.OS = ua.OS()
	if info.OS == "" {
		info.OS = ua.Platform()
	}
	return info
}

// clientIP is the peer address unless the peer is a trusted proxy. Behind a
// proxy it is the right-most X-Forwarded-For hop that is not a trusted proxy.
func (s *Server) clientIP(r *http.Request) string {
	peer := remoteHost(r)
	addr, err := netip.ParseAddr(peer)
	if err != nil || !s.proxies.Contains(addr) {
		return peer
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		hop = hop.Unmap()
		if !s.proxies.Contains(hop) {
			return hop.String()
		}
		peer = hop.String()
	}
	return peer
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
