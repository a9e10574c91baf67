package token

import "time"

// Kind tags what a token may be used for. A token carries exactly one kind
// and is only accepted by the validator expecting that kind.
type Kind string

const (
	KindAccess             Kind = "access"
	KindRefresh            Kind = "refresh"
	KindSecurityReauth     Kind = "security_reauth"
	KindTwoFactorChallenge Kind = "two_factor_challenge"
)

func (k Kind) Valid() bool {
	switch k {
	case KindAccess, KindRefresh, KindSecurityReauth, KindTwoFactorChallenge:
		return true
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}

// TTLs holds the lifetime of each token kind.
type TTLs struct {
	Access             time.Duration
	Refresh            time.Duration
	SecurityReauth     time.Duration
	TwoFactorChallenge time.Duration
}

// For returns the lifetime configured for kind, or zero when unknown.
func (t TTLs) For(kind Kind) time.Duration {
	switch kind {
	case KindAccess:
		return t.Access
	case KindRefresh:
		return t.Refresh
	case KindSecurityReauth:
		return t.SecurityReauth
	case KindTwoFactorChallenge:
		return t.TwoFactorChallenge
	}
	return 0
}
