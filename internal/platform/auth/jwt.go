package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoSecret     = errors.New("jwt secret not configured")
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingUser  = errors.New("userId is required")
)

// Issuer signs and verifies HS256 user tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (i *Issuer) Enabled() bool { return i != nil && len(i.secret) > 0 }

func (i *Issuer) Issue(id Identity) (token string, expiresAt time.Time, err error) {
	if !i.Enabled() {
		return "", time.Time{}, ErrNoSecret
	}
	if strings.TrimSpace(id.UserID) == "" {
		return "", time.Time{}, ErrMissingUser
	}
	now := i.now()
	exp := now.Add(i.ttl)
	claims := jwtlib.MapClaims{
		"sub": id.UserID,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
	}
	if id.UserName != "" {
		claims["name"] = id.UserName
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (i *Issuer) Verify(token string) (Identity, error) {
	if !i.Enabled() {
		return Identity{}, ErrNoSecret
	}
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwtlib.WithTimeFunc(i.now), jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	sub, _ := claims.GetSubject()
	if strings.TrimSpace(sub) == "" {
		return Identity{}, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	name, _ := claims["name"].(string)
	return Identity{UserID: sub, UserName: name}, nil
}
