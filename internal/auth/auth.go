package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang-jwt/jwt/v5/request"

	"paperflow/internal/domain"
)

// Claims - полезная нагрузка токена службы идентификации.
// Ядро само не аутентифицирует учетные данные - оно лишь доверяет
// подписанным утверждениям о личности, роли и кафедре актора.
type Claims struct {
	Name       string `json:"name,omitempty"`
	Role       string `json:"role,omitempty"`
	Department string `json:"department,omitempty"`
	jwt.RegisteredClaims
}

type claimsKeyType string

const ctxActorKey claimsKeyType = "actor"

// GenerateToken выпускает токен для актора (используется в тестах и
// служебных утилитах, основной выпуск токенов - за внешним сервисом)
func GenerateToken(actor domain.Actor, key []byte, ttl time.Duration) (string, error) {
	claims := &Claims{
		Name:       actor.Name,
		Role:       string(actor.Role),
		Department: actor.Department,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}

// ValidateToken проверяет подпись и срок действия токена
func ValidateToken(tokenStr string, key []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return nil, errors.New("invalid token signature")
		}
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Actor собирает актора из утверждений токена. Неизвестная роль
// сохраняется пустой - резолвер областей видимости сведет её к
// пустой выборке, а не к ошибке.
func (c *Claims) Actor() domain.Actor {
	role, _ := domain.ParseRole(c.Role)
	return domain.Actor{
		ID:         c.Subject,
		Name:       c.Name,
		Role:       role,
		Department: c.Department,
	}
}

// Middleware извлекает bearer-токен, проверяет его и кладет актора
// в контекст запроса
func Middleware(key []byte) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			token, err := request.BearerExtractor{}.ExtractToken(r)
			if err != nil {
				http.Error(w, "authorization required", http.StatusUnauthorized)
				return
			}

			claims, err := ValidateToken(token, key)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ctxActorKey, claims.Actor())
			next.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(fn)
	}
}

// ActorFromContext возвращает актора, положенного Middleware
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(ctxActorKey).(domain.Actor)
	return actor, ok
}
