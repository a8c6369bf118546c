package web

import (
	"net/http"
)

// public registers a handler without any access requirements.
func (s *Server) public(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// publicOnly registers a handler that is only available to visitors
// that are not logged in. Logged in users are redirected to the
// homepage.
func (s *Server) publicOnly(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := principalFromCtx(r.Context())
		if p.IsAuthenticated() {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}

		handler.ServeHTTP(w, r)
	}))
}

// requireScope registers a handler that is only available to principals
// holding the given scope. Everyone else is redirected to the login
// page.
func (s *Server) requireScope(scope, pattern string, handler http.Handler) {
	s.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := principalFromCtx(r.Context())
		if !p.HasScope(scope) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		handler.ServeHTTP(w, r)
	}))
}
