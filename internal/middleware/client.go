package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	// ClientHeader carries the portal client id on API calls.
	ClientHeader = "X-Portal-Client"
	// ClientCookie is the browser fallback for ClientHeader.
	ClientCookie = "portal_client"
)

type clientKey struct{}

// ClientID resolves the portal client id from the header or cookie and
// mints a new one when neither is present. New ids are returned in both
// the response header and a cookie.
func ClientID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(ClientHeader))
		if id == "" {
			if c, err := r.Cookie(ClientCookie); err == nil {
				id = strings.TrimSpace(c.Value)
			}
		}
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     ClientCookie,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		w.Header().Set(ClientHeader, id)
		next.ServeHTTP(w, r.WithContext(WithClientID(r.Context(), id)))
	})
}

// WithClientID stores id on ctx.
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientKey{}, id)
}

// ClientIDFrom returns the id stored by ClientID, or "".
func ClientIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(clientKey{}).(string)
	return id
}
