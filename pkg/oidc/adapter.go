package oidc

import (
	"context"
	"fmt"

	"github.com/cohortd/cohort/pkg/principal"
)

// Identity is the claim-derived identity of a principal candidate.
type Identity struct {
	ExternalID string
	Username   string
	Email      string
}

// PrincipalAdapter supplies everything that differs between the researcher
// and participant populations: requested scopes, claim-to-identity mapping,
// lookup and provisioning policy. The controller itself stays generic.
type PrincipalAdapter interface {
	// Kind names the population this adapter serves.
	Kind() principal.Kind
	// Scopes returns the OAuth scopes requested at login.
	Scopes() []string
	// Identity maps verified claims to the external identity.
	Identity(claims *Claims) (Identity, error)
	// Lookup finds the existing principal for the identity. Returns
	// principal.ErrNotFound when none exists.
	Lookup(ctx context.Context, id Identity) (*principal.Principal, error)
	// Provision creates a principal for a first-time identity, or returns
	// ErrPrincipalNotFound for populations that never auto-create.
	Provision(ctx context.Context, id Identity) (*principal.Principal, error)
}

// ResearcherAdapter maps claims to researcher accounts. Accounts are created
// by administrative provisioning only; an unknown identity is rejected.
type ResearcherAdapter struct {
	store *principal.Store
}

// NewResearcherAdapter creates the researcher principal adapter.
func NewResearcherAdapter(store *principal.Store) *ResearcherAdapter {
	return &ResearcherAdapter{store: store}
}

func (a *ResearcherAdapter) Kind() principal.Kind {
	return principal.KindResearcher
}

func (a *ResearcherAdapter) Scopes() []string {
	return []string{"openid", "profile", "email"}
}

func (a *ResearcherAdapter) Identity(claims *Claims) (Identity, error) {
	if claims.Email == "" {
		return Identity{}, authErr(KindClaimInvalid, "researcher token missing email claim", nil)
	}
	return Identity{
		ExternalID: claims.Subject,
		Username:   claims.Username,
		Email:      claims.Email,
	}, nil
}

func (a *ResearcherAdapter) Lookup(ctx context.Context, id Identity) (*principal.Principal, error) {
	return a.store.FindByExternalID(ctx, principal.KindResearcher, id.ExternalID)
}

func (a *ResearcherAdapter) Provision(ctx context.Context, id Identity) (*principal.Principal, error) {
	return nil, authErr(KindPrincipalNotFound,
		fmt.Sprintf("no researcher account for identity %s", id.ExternalID), nil)
}

// ParticipantAdapter maps claims to participant subjects. A first successful
// login creates the subject.
type ParticipantAdapter struct {
	store *principal.Store
}

// NewParticipantAdapter creates the participant principal adapter.
func NewParticipantAdapter(store *principal.Store) *ParticipantAdapter {
	return &ParticipantAdapter{store: store}
}

func (a *ParticipantAdapter) Kind() principal.Kind {
	return principal.KindParticipant
}

func (a *ParticipantAdapter) Scopes() []string {
	return []string{"openid"}
}

func (a *ParticipantAdapter) Identity(claims *Claims) (Identity, error) {
	return Identity{
		ExternalID: claims.Subject,
		Username:   claims.Username,
		Email:      claims.Email,
	}, nil
}

func (a *ParticipantAdapter) Lookup(ctx context.Context, id Identity) (*principal.Principal, error) {
	return a.store.FindByExternalID(ctx, principal.KindParticipant, id.ExternalID)
}

func (a *ParticipantAdapter) Provision(ctx context.Context, id Identity) (*principal.Principal, error) {
	p := &principal.Principal{
		Kind:       principal.KindParticipant,
		ExternalID: id.ExternalID,
		Username:   id.Username,
		Email:      id.Email,
		Confirmed:  true,
	}
	if err := a.store.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to provision participant: %w", err)
	}
	return p, nil
}
