package http

import (
	"context"
	"crypto/rsa"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/tour-package-bookings/internal/domain"
)

// Claims are the token claims the API relies on. The subject is the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies bearer tokens signed with RS256 (public key) or HS256 (shared secret).
type Authenticator struct {
	publicKey *rsa.PublicKey
	secret    []byte
}

func NewAuthenticator(publicKeyPEM, secret string) (*Authenticator, error) {
	a := &Authenticator{secret: []byte(secret)}
	if publicKeyPEM != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
		if err != nil {
			return nil, errors.Wrap(err, "parse jwt public key")
		}
		a.publicKey = key
	}
	if a.publicKey == nil && len(a.secret) == 0 {
		return nil, errors.New("either JWT_PUBLIC_KEY or JWT_SECRET must be set")
	}
	return a, nil
}

func (a *Authenticator) keyFunc(t *jwt.Token) (interface{}, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodRSA:
		if a.publicKey != nil {
			return a.publicKey, nil
		}
	case *jwt.SigningMethodHMAC:
		if len(a.secret) > 0 {
			return a.secret, nil
		}
	}
	return nil, errors.Newf("unexpected signing method %s", t.Method.Alg())
}

// Parse validates token and returns the principal it names.
func (a *Authenticator) Parse(token string) (domain.Principal, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, a.keyFunc,
		jwt.WithValidMethods([]string{"RS256", "HS256"}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return domain.Principal{}, domain.Forbidden("invalid or expired token")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return domain.Principal{}, domain.Forbidden("token subject is not a user id")
	}
	role := domain.Role(claims.Role)
	if role != domain.RoleAdmin {
		role = domain.RoleCustomer
	}
	return domain.Principal{UserID: userID, Role: role}, nil
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the authenticated caller, or the zero (anonymous) principal.
func PrincipalFrom(ctx context.Context) domain.Principal {
	p, _ := ctx.Value(principalKey{}).(domain.Principal)
	return p
}

// Authenticate attaches the principal of a valid bearer token to the request. Requests without
// a token pass through anonymously; requests with a bad token are rejected.
func Authenticate(a *Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				unauthorized(w, "authorization header must be a bearer token")
				return
			}
			p, err := a.Parse(strings.TrimSpace(token))
			if err != nil {
				unauthorized(w, domain.Reason(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: msg})
}

func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFrom(r.Context()).IsAnonymous() {
			unauthorized(w, "sign in to continue")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireAdmin(next http.Handler) http.Handler {
	return RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !PrincipalFrom(r.Context()).IsAdmin() {
			writeError(w, r, domain.Forbidden("administrator access required"))
			return
		}
		next.ServeHTTP(w, r)
	}))
}
