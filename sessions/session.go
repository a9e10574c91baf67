package sessions

import (
	"time"
)

// ClientInfo describes the device a session was opened from.
type ClientInfo struct {
	IP     string `json:"ip" bson:"ip"`
	Device string `json:"device" bson:"device"`
	OS     string `json:"os" bson:"os"`
}

// Record is the server-side copy of a live refresh token. A refresh token is
// usable only while it equals the Token of an existing record; rotation
// replaces Token in place.
type Record struct {
	ID        string     `json:"id" bson:"_id"`
	SubjectID string     `json:"subject_id" bson:"subject_id"`
	Token     string     `json:"-" bson:"token"` // the live refresh token
	Client    ClientInfo `json:"client" bson:"client"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" bson:"updated_at"`
}
