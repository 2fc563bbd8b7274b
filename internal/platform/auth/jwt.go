// Pacote auth valida os tokens emitidos pelo provedor de identidade externo.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/marcelojr/pais-ao-vivo/internal/domain"
)

var ErrUnauthorized = errors.New("token ausente ou invalido")

// JWT aceita apenas HS256 e usa o claim sub como UserID.
type JWT struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWT(secret string) *JWT {
	return &JWT{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(5*time.Second),
		),
	}
}

func (a *JWT) Authenticate(token string) (domain.UserID, error) {
	if token == "" {
		return "", ErrUnauthorized
	}

	var claims jwt.RegisteredClaims
	if _, err := a.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: claim sub vazio", ErrUnauthorized)
	}
	return domain.UserID(claims.Subject), nil
}

// Sign emite um token para o usuário; usado em testes e ferramentas locais.
func (a *JWT) Sign(userID domain.UserID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   string(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
