package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/staffhub/notifications/internal/domain"
	"github.com/staffhub/notifications/internal/service"
)

// Context keys
type contextKey string

const (
	ReceiverKey contextKey = "receiver"
)

// AuthMiddleware provides authentication middleware
type AuthMiddleware struct {
	authService *service.AuthService
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(authService *service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
	}
}

// Authenticate resolves the bearer token to a receiver. Browsers cannot set
// headers on websocket requests, so the token may also come as ?token=.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			token = r.URL.Query().Get("token")
		}

		if token == "" {
			http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
			return
		}

		receiver, err := m.authService.ValidateToken(token)
		if err != nil {
			http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ReceiverKey, receiver)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePublisher accepts only requests carrying the publisher API key
func (m *AuthMiddleware) RequirePublisher(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := m.authService.ValidatePublisherKey(r.Header.Get("X-API-Key")); err != nil {
			http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetReceiver extracts the authenticated receiver from context
func GetReceiver(ctx context.Context) (domain.Receiver, bool) {
	receiver, ok := ctx.Value(ReceiverKey).(domain.Receiver)
	return receiver, ok
}

// WithReceiver returns a context carrying receiver
func WithReceiver(ctx context.Context, receiver domain.Receiver) context.Context {
	return context.WithValue(ctx, ReceiverKey, receiver)
}
