// Package auth verifies the bearer tokens issued by the account service and
// turns them into the calling party.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	PartyType domain.PartyType `json:"party_type"`
	PartyID   string           `json:"party_id"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Authenticate validates an HS256 token and returns the party it names.
func (v *Verifier) Authenticate(tokenString string) (domain.Party, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return domain.Party{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return domain.Party{}, fmt.Errorf("%w: invalid token claims", ErrInvalidToken)
	}
	if !claims.PartyType.IsValid() || claims.PartyID == "" {
		return domain.Party{}, fmt.Errorf("%w: missing party", ErrInvalidToken)
	}
	return domain.Party{Type: claims.PartyType, ID: claims.PartyID}, nil
}

// Issue signs a token for party. The account service owns issuance in
// production; this is used by tourctl and tests.
func (v *Verifier) Issue(party domain.Party, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		PartyType: party.Type,
		PartyID:   party.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    v.issuer,
			Subject:   party.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
