package auth

import (
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

// VisitorTokens mints and verifies the signed visitor identifiers carried
// in the session context of transcription requests. A browser keeps its
// token across visits so usage can be attributed without accounts.
type VisitorTokens struct {
	secret []byte
}

// NewVisitorTokens creates a token helper signing with secret.
func NewVisitorTokens(secret string) *VisitorTokens {
	return &VisitorTokens{secret: []byte(secret)}
}

// Mint creates a token for a fresh visitor id and returns both.
func (v *VisitorTokens) Mint() (visitorID, token string, err error) {
	visitorID = uuid.NewString()
	claims := jwt.MapClaims{
		"sub": visitorID,
		"iat": time.Now().Unix(),
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", "", fmt.Errorf("sign visitor token: %w", err)
	}
	return visitorID, token, nil
}

// Verify parses a token and returns the visitor id it carries.
func (v *VisitorTokens) Verify(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", fmt.Errorf("invalid visitor token")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("visitor token missing subject")
	}
	return sub, nil
}
