// Package auth resolves bearer tokens to user identities. The API
// server delegates verification to an external auth service; a static
// verifier serves development setups and tests.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized covers missing, malformed and rejected tokens.
var ErrUnauthorized = errors.New("unauthorized")

// Verifier turns a bearer token into a user ID.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// RemoteVerifier asks an auth service to validate the token. The
// service answers 200 with {"user_id": "..."} or a 4xx rejection.
type RemoteVerifier struct {
	baseURL string
	http    *http.Client
}

func NewRemoteVerifier(baseURL string, timeout time.Duration) *RemoteVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RemoteVerifier{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/v1/verify", nil)
	if err != nil {
		return "", fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call auth service: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", ErrUnauthorized
	default:
		return "", fmt.Errorf("auth service returned %d", resp.StatusCode)
	}

	var payload struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	if payload.UserID == "" {
		return "", ErrUnauthorized
	}
	return payload.UserID, nil
}

// StaticVerifier maps fixed tokens to user IDs. Development only.
type StaticVerifier map[string]string

func (v StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	userID, ok := v[token]
	if !ok {
		return "", ErrUnauthorized
	}
	return userID, nil
}

type contextKey string

const userIDKey contextKey = "user_id"

// UserID returns the authenticated user from the request context.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// WithUserID stores the user on the context. Exposed for tests.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// Middleware authenticates every request with the verifier and puts
// the user ID on the context. Failures answer 401 with a JSON body.
func Middleware(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				unauthorized(w)
				return
			}

			userID, err := verifier.Verify(r.Context(), token)
			if errors.Is(err, ErrUnauthorized) {
				unauthorized(w)
				return
			}
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadGateway)
				json.NewEncoder(w).Encode(map[string]string{"error": "auth service unavailable"})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}
