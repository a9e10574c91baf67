package notify

import (
	"context"
	"net/netip"
)

// GeoResolver maps an IP address to a coarse, human-readable location.
// Implementations should return "" when the location is unknown.
type GeoResolver interface {
	Resolve(ctx context.Context, ip string) string
}

type GeoResolverFunc func(ctx context.Context, ip string) string

func (f GeoResolverFunc) Resolve(ctx context.Context, ip string) string {
	return f(ctx, ip)
}

// LocalGeoResolver labels loopback and private addresses and leaves public
// ones unknown. It is the default when no lookup service is configured.
type LocalGeoResolver struct{}

func (LocalGeoResolver) Resolve(_ context.Context, ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ""
	}
	switch {
	case addr.IsLoopback():
		return "Local machine"
	case addr.IsPrivate():
		return "Private network"
	}
	return ""
}
