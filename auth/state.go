package auth

import (
	"github.com/jrsteele09/go-admin-auth/notify"
)

// State is where a login attempt stands.
type State int

const (
	Unauthenticated State = iota
	PendingChallenge
	Authenticated
)

func (s State) String() string {
	switch s {
	case PendingChallenge:
		return "pending_challenge"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Pair is an access token with the refresh token that renews it.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"` // access token lifetime in seconds
	SessionID    string `json:"session_id"`
}

// LoginResult is the outcome of a successful password or challenge step.
// Exactly one of Pair and ChallengeToken is set, according to State.
// Events must be handed to a notify.Publisher by the caller.
type LoginResult struct {
	State          State
	Pair           *Pair
	ChallengeToken string
	Events         []notify.Event
}
