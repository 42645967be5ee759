package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/okian/rollcall/internal/domain/model"
)

// Gateway headers trusted when no JWT secret is configured.
const (
	HeaderIdentityRef        = "X-Identity-Ref"
	HeaderIdentityName       = "X-Identity-Name"
	HeaderIdentityEmployeeID = "X-Identity-Employee-Id"
	HeaderIdentityAuthorized = "X-Identity-Authorized"
)

type identityKey struct{}

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity attached by the middleware.
func IdentityFrom(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(model.Identity)
	return id, ok
}

// Authenticator turns a request into a model.Identity. It vouches for who
// is calling; the authorized flag is passed through for the ledger to act on.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
}

// NewAuthenticator verifies HS256 tokens when secret is non-empty and
// reads gateway headers otherwise.
func NewAuthenticator(secret []byte) *Authenticator {
	return &Authenticator{
		secret: secret,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

// Middleware rejects requests without a usable identity with 401.
func (a *Authenticator) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := a.Identify(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	}
}

// Identify extracts the caller's identity from r.
func (a *Authenticator) Identify(r *http.Request) (model.Identity, error) {
	const op = "api.identify"
	if len(a.secret) == 0 {
		return fromHeaders(op, r.Header)
	}

	tok, err := bearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return model.Identity{}, WrapKind(op, ErrUnauthenticated, err)
	}
	claims := jwt.MapClaims{}
	if _, err := a.parser.ParseWithClaims(tok, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}); err != nil {
		return model.Identity{}, WrapKind(op, ErrUnauthenticated, fmt.Errorf("%w: %v", ErrInvalidToken, err))
	}
	return fromClaims(op, claims)
}

func fromHeaders(op string, h http.Header) (model.Identity, error) {
	id := model.Identity{
		Ref:         strings.TrimSpace(h.Get(HeaderIdentityRef)),
		DisplayName: strings.TrimSpace(h.Get(HeaderIdentityName)),
		EmployeeID:  strings.TrimSpace(h.Get(HeaderIdentityEmployeeID)),
	}
	if id.Ref == "" {
		return model.Identity{}, WrapKind(op, ErrUnauthenticated, errors.New("missing "+HeaderIdentityRef))
	}
	if v := strings.TrimSpace(h.Get(HeaderIdentityAuthorized)); v != "" {
		ok, err := strconv.ParseBool(v)
		if err != nil {
			return model.Identity{}, WrapKind(op, ErrUnauthenticated, fmt.Errorf("bad %s %q", HeaderIdentityAuthorized, v))
		}
		id.Authorized = ok
	}
	return id, nil
}

// fromClaims maps sub, name (falling back to email),
// user_metadata.employee_id and authorized.
func fromClaims(op string, claims jwt.MapClaims) (model.Identity, error) {
	id := model.Identity{
		Ref:         strings.TrimSpace(claimString(claims, "sub")),
		DisplayName: strings.TrimSpace(claimString(claims, "name")),
	}
	if id.Ref == "" {
		return model.Identity{}, WrapKind(op, ErrUnauthenticated, fmt.Errorf("%w: missing sub", ErrInvalidToken))
	}
	if id.DisplayName == "" {
		id.DisplayName = strings.TrimSpace(claimString(claims, "email"))
	}
	if meta, ok := claims["user_metadata"].(map[string]interface{}); ok {
		if v, ok := meta["employee_id"].(string); ok {
			id.EmployeeID = strings.TrimSpace(v)
		}
	}
	if v, ok := claims["authorized"].(bool); ok {
		id.Authorized = v
	}
	return id, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return v
}

func bearerToken(header string) (string, error) {
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", errors.New("missing bearer token")
	}
	return fields[1], nil
}
