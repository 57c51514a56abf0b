package middleware

import (
	"crypto/rsa"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	errors "github.com/frahmantamala/reservation-payments/internal"
	"github.com/frahmantamala/reservation-payments/internal/transport"
	"github.com/frahmantamala/reservation-payments/pkg/logger"
)

// Claims is the access token payload issued by the operator identity provider.
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Scopes splits the space-delimited scope claim.
func (c *Claims) Scopes() []string {
	return strings.Fields(c.Scope)
}

type Authenticator struct {
	transport.BaseHandler
	publicKey *rsa.PublicKey
	issuer    string
}

func NewAuthenticator(publicKey *rsa.PublicKey, issuer string, base *transport.BaseHandler) *Authenticator {
	return &Authenticator{
		BaseHandler: *base,
		publicKey:   publicKey,
		issuer:      issuer,
	}
}

// Middleware accepts RS256 bearer tokens and records the subject and scopes
// on the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := transport.ExtractTokenFromHeader(r)
		if token == "" {
			a.HandleError(w, r, errors.NewUnauthorizedError("missing authorization token", errors.ErrCodeInvalidToken))
			return
		}

		claims, err := a.validate(token)
		if err != nil {
			a.HandleError(w, r, err)
			return
		}

		ctx := errors.ContextWithSubject(r.Context(), claims.Subject)
		ctx = errors.ContextWithScopes(ctx, claims.Scopes())
		ctx = logger.With(ctx, "subject", claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return a.publicKey, nil
	}, opts...)
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.ErrTokenExpired
		}
		return nil, errors.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, errors.ErrInvalidToken
	}
	return claims, nil
}

// RequireScope rejects callers whose token lacks every one of scopes.
func RequireScope(base *transport.BaseHandler, scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			granted := errors.ScopesFromContext(r.Context())
			for _, required := range scopes {
				for _, have := range granted {
					if have == required {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			logger.FromOr(r.Context(), base.Logger).Warn("access denied: missing scope",
				"subject", errors.SubjectFromContext(r.Context()),
				"required_scopes", scopes,
				"granted_scopes", granted)
			base.HandleError(w, r, errors.NewForbiddenError("insufficient scope", errors.ErrCodeInsufficientScope))
		})
	}
}
