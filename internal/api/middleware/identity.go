package middleware

import (
	"context"
	"net/http"

	"github.com/gorilla/sessions"
)

// UserHeader carries the caller id when a trusted gateway fronts freightd.
const UserHeader = "X-Freight-User"

const userKey = "user_id"

type ctxKey struct{}

// Identity resolves the calling user from a signed session cookie, or from
// UserHeader when trustHeader is set. Authentication itself happens
// elsewhere; Identity only carries its outcome.
type Identity struct {
	store       *sessions.CookieStore
	name        string
	trustHeader bool
}

// NewIdentity creates an identity provider whose cookies are signed with secret.
func NewIdentity(secret []byte, cookieName string, trustHeader bool) *Identity {
	cs := sessions.NewCookieStore(secret)
	cs.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   30 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &Identity{store: cs, name: cookieName, trustHeader: trustHeader}
}

// Middleware stores the resolved user id in the request context. Requests
// without an identity pass through unauthenticated.
func (i *Identity) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID := i.resolve(r); userID != "" {
			r = r.WithContext(WithUserID(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}

func (i *Identity) resolve(r *http.Request) string {
	if i.trustHeader {
		if id := r.Header.Get(UserHeader); id != "" {
			return id
		}
	}
	session, err := i.store.Get(r, i.name)
	if err != nil {
		return ""
	}
	id, _ := session.Values[userKey].(string)
	return id
}

// Login issues a session cookie for userID.
func (i *Identity) Login(w http.ResponseWriter, r *http.Request, userID string) error {
	session, _ := i.store.Get(r, i.name)
	session.Values[userKey] = userID
	return session.Save(r, w)
}

// Logout expires the session cookie.
func (i *Identity) Logout(w http.ResponseWriter, r *http.Request) error {
	session, _ := i.store.Get(r, i.name)
	delete(session.Values, userKey)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// WithUserID returns a context carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the caller resolved by Identity, or "".
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
