package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionTable(t *testing.T) {
	allowed := map[Role]map[Status][]Status{
		RoleAuthor: {
			StatusCorrectionRequested: {StatusSubmitted},
		},
		RoleSubjectReviewer: {
			StatusSubmitted: {StatusSubjectApproved, StatusCorrectionRequested},
		},
		RoleBoardReviewer: {
			StatusSubjectApproved: {StatusBoardApproved, StatusCorrectionRequested},
		},
		RoleOversight: {
			StatusBoardApproved: {StatusLocked},
		},
		RoleDistributor: {
			StatusLocked: {StatusDistributed},
		},
	}

	roles := []Role{RoleAuthor, RoleSubjectReviewer, RoleBoardReviewer, RoleOversight, RoleDistributor}

	// Полный перебор (роль, откуда, куда): разрешено ровно то, что в таблице
	for _, role := range roles {
		for _, from := range AllStatuses() {
			for _, to := range AllStatuses() {
				want := false
				for _, target := range allowed[role][from] {
					if target == to {
						want = true
					}
				}
				got := CanTransition(role, from, to)
				assert.Equal(t, want, got, "role=%s from=%s to=%s", role, from, to)
			}
		}
	}
}

func TestTerminalStates(t *testing.T) {
	for _, role := range []Role{RoleAuthor, RoleSubjectReviewer, RoleBoardReviewer, RoleOversight, RoleDistributor} {
		assert.Empty(t, AllowedTransitions(role, StatusDistributed), "Distributed is terminal for %s", role)
	}
}

func TestUnknownRoleHasNoTransitions(t *testing.T) {
	for _, from := range AllStatuses() {
		assert.Empty(t, AllowedTransitions(Role("janitor"), from))
	}
}

func TestParseStatus(t *testing.T) {
	status, ok := ParseStatus("SubjectApproved")
	assert.True(t, ok)
	assert.Equal(t, StatusSubjectApproved, status)

	_, ok = ParseStatus("Approved")
	assert.False(t, ok)
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole("board_reviewer")
	assert.True(t, ok)
	assert.Equal(t, RoleBoardReviewer, role)

	_, ok = ParseRole("")
	assert.False(t, ok)
}
