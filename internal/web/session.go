package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dstam/groundwork/internal/auth"
	"github.com/dstam/groundwork/internal/web/sessions"
)

// sessionMiddleware gets the session for the request and resolves the
// principal for the session subject. Both are injected in the request
// context for downstream handlers.
//
// If the session references a user that can no longer be resolved to an
// authenticated principal, the subject is removed from the session.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.deps.SessionStore.Get(r)
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		principal := auth.Unauthenticated()
		if userID, ok := sess.UserID(); ok {
			principal = s.deps.Resolver.Resolve(r.Context(), userID)
			if !principal.IsAuthenticated() {
				sess.DeleteUserID()
			}
		}

		if sess.NeedsSave() {
			err = s.deps.SessionStore.Save(r, w, sess)
			if err != nil {
				s.handleError(w, r, err)
				return
			}
		}

		ctx := ctxWithSession(r.Context(), sess)
		ctx = ctxWithPrincipal(ctx, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type ctxKey string

const (
	sessionCtxKey   ctxKey = "_session"
	principalCtxKey ctxKey = "_principal"
)

func ctxWithSession(ctx context.Context, sess *sessions.Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, sess)
}

func sessionFromCtx(ctx context.Context) (*sessions.Session, error) {
	sess, ok := ctx.Value(sessionCtxKey).(*sessions.Session)
	if !ok {
		return nil, fmt.Errorf("could not get session from context")
	}

	return sess, nil
}

func ctxWithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, p)
}

// principalFromCtx returns the principal for the request. Requests
// outside the session middleware get the unauthenticated principal.
func principalFromCtx(ctx context.Context) auth.Principal {
	p, ok := ctx.Value(principalCtxKey).(auth.Principal)
	if !ok {
		return auth.Unauthenticated()
	}

	return p
}
