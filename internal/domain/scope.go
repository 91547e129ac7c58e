package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Filter представляет пару (колонка, значение) для фильтрации списков
type Filter struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// AccessScope описывает, какие строки и статусы видит актор.
// Не хранится в базе - вычисляется на каждый запрос.
type AccessScope struct {
	Role             Role     `json:"role"`
	AllowedStatuses  []Status `json:"allowed_statuses"`
	MandatoryFilters []Filter `json:"mandatory_filters"`
}

// Allows проверяет, входит ли статус в область видимости
func (s AccessScope) Allows(status Status) bool {
	for _, allowed := range s.AllowedStatuses {
		if allowed == status {
			return true
		}
	}
	return false
}

// Empty сообщает, что область видимости не покрывает ни одной строки
func (s AccessScope) Empty() bool {
	return len(s.AllowedStatuses) == 0
}

// QueryDescriptor - ключ запроса и кэша для списочных представлений
type QueryDescriptor struct {
	EntityTag string      `json:"entity_tag"`
	Filters   []Filter    `json:"filters"`
	Search    string      `json:"search"`
	Page      int         `json:"page"`
	Scope     AccessScope `json:"scope"`
}

// WithPage возвращает копию дескриптора с другим номером страницы
func (d QueryDescriptor) WithPage(page int) QueryDescriptor {
	d.Page = page
	return d
}

// Key возвращает каноническую строку ключа кэша. Фильтры и статусы
// сортируются, чтобы логически одинаковые запросы с разным порядком
// элементов попадали в одну запись кэша.
func (d QueryDescriptor) Key() string {
	var b strings.Builder
	b.WriteString(d.EntityTag)
	b.WriteString("|f:")
	b.WriteString(canonicalFilters(d.Filters))
	b.WriteString("|s:")
	b.WriteString(strings.ToLower(d.Search))
	fmt.Fprintf(&b, "|p:%d", d.Page)
	b.WriteString("|r:")
	b.WriteString(string(d.Scope.Role))
	b.WriteString("|st:")
	statuses := make([]string, 0, len(d.Scope.AllowedStatuses))
	for _, st := range d.Scope.AllowedStatuses {
		statuses = append(statuses, string(st))
	}
	sort.Strings(statuses)
	b.WriteString(strings.Join(statuses, ","))
	b.WriteString("|mf:")
	b.WriteString(canonicalFilters(d.Scope.MandatoryFilters))
	return b.String()
}

func canonicalFilters(filters []Filter) string {
	sorted := make([]Filter, len(filters))
	copy(sorted, filters)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Field != sorted[j].Field {
			return sorted[i].Field < sorted[j].Field
		}
		return sorted[i].Value < sorted[j].Value
	})
	parts := make([]string, 0, len(sorted))
	for _, f := range sorted {
		parts = append(parts, f.Field+"="+f.Value)
	}
	return strings.Join(parts, ",")
}

// PageResult представляет одну страницу результата запроса.
// TotalCount считается по всему отфильтрованному набору, а не по срезу страницы.
type PageResult[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"total_count"`
}

// PageCount возвращает количество страниц для данного результата
func (r PageResult[T]) PageCount() int {
	return (r.TotalCount + PageSize - 1) / PageSize
}
