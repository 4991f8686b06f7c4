package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultIssuer     = "service-gateway"
	DefaultCookieName = "session"
	DefaultTokenTTL   = 24 * time.Hour
)

var ErrMissingSecret = errors.New("jwt secret must not be empty")

// Identity is the authenticated caller. Its JSON form is forwarded upstream.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Header renders the identity as the X-Forwarded-User value.
func (i Identity) Header() string {
	b, err := json.Marshal(i)
	if err != nil {
		return ""
	}
	return string(b)
}

type Authenticator interface {
	Authenticate(r *http.Request) (Identity, bool)
}

// Claims is the JWT payload issued and accepted by the gateway.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type Options struct {
	Secret     string
	Issuer     string
	CookieName string
	TTL        time.Duration
}

type JWT struct {
	secret     []byte
	issuer     string
	cookieName string
	ttl        time.Duration
	now        func() time.Time
}

func NewJWT(opts Options) (*JWT, error) {
	if opts.Secret == "" {
		return nil, ErrMissingSecret
	}
	if opts.Issuer == "" {
		opts.Issuer = DefaultIssuer
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTokenTTL
	}

	return &JWT{
		secret:     []byte(opts.Secret),
		issuer:     opts.Issuer,
		cookieName: opts.CookieName,
		ttl:        opts.TTL,
		now:        time.Now,
	}, nil
}

// Issue signs a token for the given user.
func (j *JWT) Issue(userID, email string) (string, error) {
	now := j.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
		UserID: userID,
		Email:  email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Authenticate accepts a valid token from "Authorization: Bearer" or, failing
// that, from the session cookie.
func (j *JWT) Authenticate(r *http.Request) (Identity, bool) {
	token := bearerToken(r)
	if token == "" {
		if c, err := r.Cookie(j.cookieName); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		return Identity{}, false
	}

	claims, err := j.Parse(token)
	if err != nil {
		return Identity{}, false
	}

	return Identity{ID: claims.UserID, Email: claims.Email}, true
}

// Parse validates signature, algorithm, issuer and expiry.
func (j *JWT) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(_ *jwt.Token) (any, error) {
			return j.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || claims.UserID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func bearerToken(r *http.Request) string {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found {
		return ""
	}
	return strings.TrimSpace(token)
}
