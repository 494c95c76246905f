// Package principal stores the identities that can authenticate against the
// backend: researcher accounts and participant subjects. Principals are
// archived rather than deleted; an archived principal must never authenticate
// again even with otherwise valid provider credentials.
package principal

import "time"

// Kind distinguishes the two principal populations. They share storage and
// behavior; only claim mapping and provisioning policy differ.
type Kind string

const (
	KindResearcher  Kind = "researcher"
	KindParticipant Kind = "participant"
)

// Valid reports whether the kind is one of the known populations.
func (k Kind) Valid() bool {
	return k == KindResearcher || k == KindParticipant
}

// Principal is an identity that may authenticate.
type Principal struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	ExternalID string    `json:"external_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	Confirmed  bool      `json:"confirmed"`
	Archived   bool      `json:"archived"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
