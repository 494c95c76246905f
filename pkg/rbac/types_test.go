package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGrantSetAllows(t *testing.T) {
	tests := []struct {
		name     string
		grants   []Permission
		action   Action
		resource Resource
		want     bool
	}{
		{
			name:     "exact pair matches",
			grants:   []Permission{{Action: ActionView, Resource: ResourceStudies}},
			action:   ActionView,
			resource: ResourceStudies,
			want:     true,
		},
		{
			name:     "different action does not match",
			grants:   []Permission{{Action: ActionView, Resource: ResourceStudies}},
			action:   ActionEdit,
			resource: ResourceStudies,
			want:     false,
		},
		{
			name:     "action wildcard covers any resource",
			grants:   []Permission{{Action: ActionView, Resource: ResourceAny}},
			action:   ActionView,
			resource: ResourceParticipants,
			want:     true,
		},
		{
			name:     "action wildcard does not cover other actions",
			grants:   []Permission{{Action: ActionView, Resource: ResourceAny}},
			action:   ActionDelete,
			resource: ResourceParticipants,
			want:     false,
		},
		{
			name:     "resource wildcard covers any action",
			grants:   []Permission{{Action: ActionAny, Resource: ResourceStudies}},
			action:   ActionExport,
			resource: ResourceStudies,
			want:     true,
		},
		{
			name:     "full wildcard covers everything",
			grants:   []Permission{{Action: ActionAny, Resource: ResourceAny}},
			action:   ActionDelete,
			resource: ResourceAccounts,
			want:     true,
		},
		{
			name:     "partial wildcards do not combine into a full wildcard",
			grants:   []Permission{{Action: ActionView, Resource: ResourceAny}, {Action: ActionAny, Resource: ResourceStudies}},
			action:   ActionDelete,
			resource: ResourceAccounts,
			want:     false,
		},
		{
			name:     "empty set denies",
			grants:   nil,
			action:   ActionView,
			resource: ResourceStudies,
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGrantSet(tt.grants...)
			assert.Equal(t, tt.want, g.Allows(tt.action, tt.resource))
		})
	}
}

func TestGrantSetDeduplicates(t *testing.T) {
	g := NewGrantSet(
		Permission{ID: 1, Action: ActionView, Resource: ResourceStudies},
		Permission{ID: 2, Action: ActionView, Resource: ResourceStudies},
		Permission{ID: 3, Action: ActionEdit, Resource: ResourceStudies},
	)

	assert.Len(t, g, 2)
	assert.True(t, g.Contains(ActionView, ResourceStudies))
	assert.True(t, g.Contains(ActionEdit, ResourceStudies))
}

func TestGrantSetKeysSorted(t *testing.T) {
	g := NewGrantSet(
		Permission{Action: ActionView, Resource: ResourceStudies},
		Permission{Action: ActionEdit, Resource: ResourceStudies},
		Permission{Action: ActionEdit, Resource: ResourceAccounts},
	)

	keys := g.Keys()
	assert.Equal(t, []PermissionKey{
		{Action: ActionEdit, Resource: ResourceAccounts},
		{Action: ActionEdit, Resource: ResourceStudies},
		{Action: ActionView, Resource: ResourceStudies},
	}, keys)
}

func TestPermissionString(t *testing.T) {
	p := Permission{Action: ActionView, Resource: ResourceParticipants}
	assert.Equal(t, "view:participants", p.String())
}
