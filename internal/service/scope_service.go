package service

import (
	"paperflow/internal/domain"
)

// AccessScopeResolver вычисляет область видимости по роли и кафедре актора
type AccessScopeResolver struct{}

func NewAccessScopeResolver() *AccessScopeResolver {
	return &AccessScopeResolver{}
}

// Resolve возвращает область видимости для актора. Роли с привязкой к
// кафедре закрепляются за своей кафедрой, автор - за своими подачами.
// Неизвестная роль дает пустую область (ноль строк), а не ошибку -
// резолвер стоит на горячем пути чтения.
func (s *AccessScopeResolver) Resolve(actor domain.Actor) domain.AccessScope {
	switch actor.Role {
	case domain.RoleAuthor:
		return domain.AccessScope{
			Role:            domain.RoleAuthor,
			AllowedStatuses: domain.AllStatuses(),
			MandatoryFilters: []domain.Filter{
				{Field: "uploader_id", Value: actor.ID},
			},
		}

	case domain.RoleSubjectReviewer:
		return domain.AccessScope{
			Role: domain.RoleSubjectReviewer,
			AllowedStatuses: []domain.Status{
				domain.StatusSubmitted,
				domain.StatusSubjectApproved,
				domain.StatusCorrectionRequested,
			},
			MandatoryFilters: []domain.Filter{
				{Field: "department_name", Value: actor.Department},
			},
		}

	case domain.RoleBoardReviewer:
		// Очередь совета начинается после первого утверждения,
		// работы в начальном статусе Submitted в неё не попадают
		return domain.AccessScope{
			Role: domain.RoleBoardReviewer,
			AllowedStatuses: []domain.Status{
				domain.StatusSubjectApproved,
				domain.StatusBoardApproved,
				domain.StatusCorrectionRequested,
				domain.StatusLocked,
				domain.StatusDistributed,
			},
			MandatoryFilters: []domain.Filter{
				{Field: "department_name", Value: actor.Department},
			},
		}

	case domain.RoleOversight:
		// Надзорная роль видит все кафедры
		return domain.AccessScope{
			Role:            domain.RoleOversight,
			AllowedStatuses: domain.AllStatuses(),
		}

	case domain.RoleDistributor:
		return domain.AccessScope{
			Role: domain.RoleDistributor,
			AllowedStatuses: []domain.Status{
				domain.StatusLocked,
				domain.StatusDistributed,
			},
		}

	default:
		return domain.AccessScope{Role: actor.Role}
	}
}
