package domain

// Role определяет роль участника в процессе утверждения работ
type Role string

const (
	RoleAuthor          Role = "author"
	RoleSubjectReviewer Role = "subject_reviewer"
	RoleBoardReviewer   Role = "board_reviewer"
	RoleOversight       Role = "oversight"
	RoleDistributor     Role = "distributor"
)

// ParseRole преобразует строку в роль. Неизвестная строка возвращает
// пустую роль и false - вызывающий код должен трактовать её как
// максимально ограниченный доступ, а не как ошибку.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAuthor, RoleSubjectReviewer, RoleBoardReviewer, RoleOversight, RoleDistributor:
		return Role(s), true
	default:
		return "", false
	}
}

// Actor представляет аутентифицированного участника процесса
type Actor struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Role       Role   `json:"role"`
	Department string `json:"department"`
}
