package config

import (
	"fmt"
	"net/netip"
	"strings"
)

type SecurityConfig interface {
	GetMaxOTPAttempts() int
	GetTOTPIssuer() string
	GetMaxBodyBytes() int64
	GetTrustedProxies() TrustedProxies
}

type Security struct {
	// MaxOTPAttempts caps codes tried per challenge token. Zero disables the cap.
	MaxOTPAttempts int      `env:"SECURITY_MAX_OTP_ATTEMPTS" envDefault:"5"`
	TOTPIssuer     string   `env:"TOTP_ISSUER" envDefault:"Catalog Admin"`
	MaxBodyBytes   int64    `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	// TrustedProxies lists the CIDRs whose X-Forwarded-For header is believed.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

var _ SecurityConfig = Security{}

func (s Security) GetMaxOTPAttempts() int {
	return s.MaxOTPAttempts
}

func (s Security) GetTOTPIssuer() string {
	if s.TOTPIssuer == "" {
		return "Catalog Admin"
	}
	return s.TOTPIssuer
}

func (s Security) GetMaxBodyBytes() int64 {
	if s.MaxBodyBytes <= 0 {
		return 1 << 20
	}
	return s.MaxBodyBytes
}

func (s Security) GetTrustedProxies() TrustedProxies {
	proxies, _ := parseProxies(s.TrustedProxies)
	return proxies
}

func (s Security) validate() error {
	_, err := parseProxies(s.TrustedProxies)
	return err
}

func parseProxies(cidrs []string) (TrustedProxies, error) {
	var proxies TrustedProxies
	for _, c := range cidrs {
		if c = strings.TrimSpace(c); c == "" {
			continue
		}
		prefix, err := netip.ParsePrefix(c)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES entry %q is not a CIDR: %w", c, err)
		}
		proxies = append(proxies, prefix.Masked())
	}
	return proxies, nil
}

// TrustedProxies are the networks of reverse proxies in front of the service.
type TrustedProxies []netip.Prefix

func (t TrustedProxies) Contains(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range t {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
