package middleware

import (
	"context"
	"net/http"
	"strings"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"

	"github.com/platterhq/platter/pkg/apperrors"
	"github.com/platterhq/platter/pkg/httputil"
	"github.com/platterhq/platter/pkg/observability"
)

// Verifier validates a bearer token and yields the user ID it belongs to.
// Identity itself lives outside this service; handlers only ever see the
// resolved user ID.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// FirebaseVerifier validates Firebase ID tokens.
type FirebaseVerifier struct {
	client *fbauth.Client
}

func NewFirebaseVerifier(ctx context.Context, app *firebase.App) (*FirebaseVerifier, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "initializing auth client", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (string, error) {
	decoded, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeUnauthenticated, "invalid token", err)
	}
	return decoded.UID, nil
}

// StaticVerifier maps fixed tokens to user IDs. Used for local development
// and tests.
type StaticVerifier struct {
	tokens map[string]string
}

func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	return &StaticVerifier{tokens: tokens}
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	if userID, ok := v.tokens[token]; ok {
		return userID, nil
	}
	return "", apperrors.New(apperrors.CodeUnauthenticated, "invalid token")
}

// Auth requires a valid bearer token on every request and stores the
// resolved user ID on the request context.
func Auth(verifier Verifier, logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				httputil.WriteAppError(w, apperrors.New(apperrors.CodeUnauthenticated, "missing bearer token"))
				return
			}

			userID, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.WithError(err).Debug("token verification failed")
				httputil.WriteAppError(w, err)
				return
			}

			ctx := observability.WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
