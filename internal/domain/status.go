package domain

// Status определяет статус экзаменационной работы в процессе утверждения
type Status string

const (
	StatusSubmitted           Status = "Submitted"
	StatusSubjectApproved     Status = "SubjectApproved"
	StatusBoardApproved       Status = "BoardApproved"
	StatusLocked              Status = "Locked"
	StatusDistributed         Status = "Distributed"
	StatusCorrectionRequested Status = "CorrectionRequested"
)

// AllStatuses возвращает все статусы жизненного цикла работы
func AllStatuses() []Status {
	return []Status{
		StatusSubmitted,
		StatusSubjectApproved,
		StatusBoardApproved,
		StatusLocked,
		StatusDistributed,
		StatusCorrectionRequested,
	}
}

// ParseStatus преобразует строку в статус
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusSubmitted, StatusSubjectApproved, StatusBoardApproved,
		StatusLocked, StatusDistributed, StatusCorrectionRequested:
		return Status(s), true
	default:
		return "", false
	}
}

// transitions задает таблицу переходов: (роль, текущий статус) -> допустимые целевые статусы.
// Автор только создает работы и повторно подает их после запроса исправлений,
// все остальные переходы принадлежат проверяющим.
var transitions = map[Role]map[Status][]Status{
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

// AllowedTransitions возвращает допустимые целевые статусы для пары (роль, статус)
func AllowedTransitions(role Role, from Status) []Status {
	byStatus, ok := transitions[role]
	if !ok {
		return nil
	}
	return byStatus[from]
}

// CanTransition проверяет, разрешен ли переход по таблице переходов
func CanTransition(role Role, from, to Status) bool {
	for _, allowed := range AllowedTransitions(role, from) {
		if allowed == to {
			return true
		}
	}
	return false
}
