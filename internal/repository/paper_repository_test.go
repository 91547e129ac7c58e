package repository

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperflow/internal/domain"
)

func oversightScope() domain.AccessScope {
	return domain.AccessScope{
		Role:            domain.RoleOversight,
		AllowedStatuses: domain.AllStatuses(),
	}
}

func TestListConditionsScopeStatusesComeFirst(t *testing.T) {
	desc := domain.QueryDescriptor{Scope: oversightScope()}

	where, args, err := listConditions(desc)
	require.NoError(t, err)

	assert.Equal(t, "status = ANY($1)", where)
	require.Len(t, args, 1)
	assert.IsType(t, pq.Array([]string{}), args[0])
}

func TestListConditionsMandatoryFiltersPrecedeCallerFilters(t *testing.T) {
	desc := domain.QueryDescriptor{
		Scope: domain.AccessScope{
			Role:             domain.RoleSubjectReviewer,
			AllowedStatuses:  []domain.Status{domain.StatusSubmitted},
			MandatoryFilters: []domain.Filter{{Field: "department_name", Value: "Computer Science"}},
		},
		Filters: []domain.Filter{{Field: "status", Value: "Submitted"}},
		Search:  "CS5",
	}

	where, args, err := listConditions(desc)
	require.NoError(t, err)

	assert.Equal(t,
		"status = ANY($1) AND department_name = $2 AND status = $3 AND subject_code ILIKE $4",
		where,
	)
	require.Len(t, args, 4)
	assert.Equal(t, "Computer Science", args[1])
	assert.Equal(t, "Submitted", args[2])
	assert.Equal(t, "%CS5%", args[3])
}

func TestListConditionsSkipsEmptyAndAllValues(t *testing.T) {
	desc := domain.QueryDescriptor{
		Scope: oversightScope(),
		Filters: []domain.Filter{
			{Field: "academic_year", Value: ""},
			{Field: "status", Value: "all"},
			{Field: "department_name", Value: "All"},
			{Field: "semester", Value: "5"},
		},
	}

	where, args, err := listConditions(desc)
	require.NoError(t, err)

	assert.Equal(t, "status = ANY($1) AND semester = $2", where)
	require.Len(t, args, 2)
	// Числовые колонки передаются как int, не как строка
	assert.Equal(t, 5, args[1])
}

func TestListConditionsRejectsNonNumericYear(t *testing.T) {
	desc := domain.QueryDescriptor{
		Scope:   oversightScope(),
		Filters: []domain.Filter{{Field: "academic_year", Value: "abc"}},
	}

	_, _, err := listConditions(desc)
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindValidation, domain.KindOf(err))
}

func TestListConditionsRejectsUnknownFilterField(t *testing.T) {
	desc := domain.QueryDescriptor{
		Scope:   oversightScope(),
		Filters: []domain.Filter{{Field: "uploader_id", Value: "fac-1"}},
	}

	_, _, err := listConditions(desc)
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindValidation, domain.KindOf(err))
}

func TestListConditionsRejectsUnknownScopeField(t *testing.T) {
	desc := domain.QueryDescriptor{
		Scope: domain.AccessScope{
			Role:             domain.RoleAuthor,
			AllowedStatuses:  []domain.Status{domain.StatusSubmitted},
			MandatoryFilters: []domain.Filter{{Field: "subject_code", Value: "CS501"}},
		},
	}

	_, _, err := listConditions(desc)
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindValidation, domain.KindOf(err))
}
