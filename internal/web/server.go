package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/csrf"
	"github.com/gorilla/schema"

	"github.com/dstam/groundwork/internal/auth"
	"github.com/dstam/groundwork/internal/email"
	"github.com/dstam/groundwork/internal/errorz"
	"github.com/dstam/groundwork/internal/krypto"
	"github.com/dstam/groundwork/internal/web/sessions"
)

const (
	csrfTokenCookieName = "gw-csrf"
	csrfTokenField      = "csrf-token"
)

// ViewRenderer renders named views with the given data.
type ViewRenderer interface {
	Render(w io.Writer, name string, data any) error
}

// ServerDeps are the dependencies for the server.
type ServerDeps struct {
	Logger       *slog.Logger
	ViewRenderer ViewRenderer
	AuthService  *auth.Service
	Resolver     *auth.Resolver
	SessionStore *sessions.Store
	DistFS       http.FileSystem
}

// ServerConfig is the configuration for the server.
type ServerConfig struct {
	CSRFKey      krypto.Key
	SecureCookie bool
}

type Server struct {
	deps    *ServerDeps
	mux     *http.ServeMux
	decoder *schema.Decoder
	handler http.Handler
}

func NewServer(deps *ServerDeps, cfg ServerConfig) *Server {
	s := &Server{
		deps:    deps,
		mux:     http.NewServeMux(),
		decoder: schema.NewDecoder(),
	}

	// Most non-static endpoints below are created using the newHandler
	// functions. These return handlers that map between HTTP requests,
	// target functions and HTTP responses. The request mapping and
	// response writing is customizable per route.

	// Homepage endpoint.
	s.public("GET /{$}", s.viewHandler("home"))

	// Login endpoints.
	{
		s.publicOnly("GET /login", s.viewHandler("login"))
	}
	{
		const route = "POST /login"
		h := newHandler(s, deps.AuthService.Authenticate)
		h.onSuccess(func(r result[auth.Credentials, auth.User]) error {
			// If we get here, the user has been authenticated.

			// We clear the CSRF token to provide defense in depth
			// against fixation attacks. If an attacker somehow gained
			// access to the CSRF token before the user logged in, it
			// will be worthless afterwards.
			//
			// A new CSRF token is generated on the next GET request
			// after the redirect.
			http.SetCookie(r.w, &http.Cookie{
				Name:   csrfTokenCookieName,
				MaxAge: -1,
			})

			r.sess.SetUserID(r.out.ID)
			err := r.s.deps.SessionStore.Save(r.r, r.w, r.sess)
			if err != nil {
				return err
			}

			http.Redirect(r.w, r.r, "/", http.StatusFound)
			return nil
		})
		h.onFail(func(sh shared, err error) {
			// Login failures all look the same to the visitor,
			// regardless of whether the email exists.
			if errors.Is(err, auth.ErrInvalidCredentials) || isInvalidInput(err) {
				s.redirectWithFlash(sh, "Invalid email address or password.", "/login")
				return
			}

			s.handleError(sh.w, sh.r, err)
		})

		s.publicOnly(route, h)
	}

	// Logout endpoint.
	{
		const route = "POST /logout"
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessionFromCtx(r.Context())
			if err != nil {
				s.handleError(w, r, err)
				return
			}

			sess.DeleteUserID()
			err = s.deps.SessionStore.Save(r, w, sess)
			if err != nil {
				s.handleError(w, r, err)
				return
			}

			http.Redirect(w, r, "/", http.StatusFound)
		})

		s.requireScope(auth.ScopeAuthenticated, route, h)
	}

	// Change password endpoints.
	{
		s.requireScope(auth.ScopeAuthenticated, "GET /change-password", s.viewHandler("change-password"))
	}
	{
		const route = "POST /change-password"

		type changePassword struct {
			CurrentPassword auth.Password
			NewPassword     auth.Password
		}

		h := newInputHandler(s, func(ctx context.Context, in changePassword) error {
			p := principalFromCtx(ctx)
			return s.deps.AuthService.ChangePassword(ctx, p.UserID, in.CurrentPassword, in.NewPassword)
		})
		h.onSuccess(func(r result[changePassword, struct{}]) error {
			return r.s.redirectWithFlashErr(r.shared, "Your password has been changed.", "/change-password")
		})
		h.onFail(func(sh shared, err error) {
			if errors.Is(err, auth.ErrCurrentPassword) {
				s.redirectWithFlash(sh, "Your current password did not match.", "/change-password")
				return
			}

			if isInvalidInput(err) {
				s.redirectWithFlash(sh, "Passwords need to be between 8 and 512 characters.", "/change-password")
				return
			}

			s.handleError(sh.w, sh.r, err)
		})

		s.requireScope(auth.ScopeAuthenticated, route, h)
	}

	// Request password reset endpoints.
	{
		s.publicOnly("GET /forgot-password", s.viewHandler("forgot-password"))
		s.publicOnly("GET /forgot-password/sent", s.viewHandler("forgot-password-sent"))
	}
	{
		const route = "POST /forgot-password"

		type passwordReset struct {
			Email email.Address
		}

		h := newInputHandler(s, func(ctx context.Context, reset passwordReset) error {
			// RequestPasswordReset intentionally reports nothing, an
			// observable difference would reveal which email addresses
			// are registered.
			s.deps.AuthService.RequestPasswordReset(ctx, reset.Email)
			return nil
		})
		h.onSuccess(func(r result[passwordReset, struct{}]) error {
			http.Redirect(r.w, r.r, "/forgot-password/sent", http.StatusFound)
			return nil
		})
		h.onFail(func(sh shared, err error) {
			if isInvalidInput(err) {
				s.redirectWithFlash(sh, "That does not look like a valid email address.", "/forgot-password")
				return
			}

			s.handleError(sh.w, sh.r, err)
		})

		s.publicOnly(route, h)
	}

	// Reset password endpoints. Both GET and POST verify the link, an
	// invalid or expired link is indistinguishable from a page that
	// does not exist.
	{
		const route = "GET /reset-password/{uid}/{token}"
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			link := auth.ResetLink{
				UID:   r.PathValue("uid"),
				Token: r.PathValue("token"),
			}

			_, err := s.deps.AuthService.VerifyResetLink(r.Context(), link.UID, link.Token)
			if err != nil {
				s.handleError(w, r, err)
				return
			}

			err = s.writeView(w, r, "reset-password", link)
			if err != nil {
				s.handleError(w, r, err)
			}
		})

		s.publicOnly(route, h)
	}
	{
		const route = "POST /reset-password/{uid}/{token}"

		type resetPassword struct {
			Password auth.Password
		}

		h := newInputHandler(s, deps.AuthService.ResetPassword)
		h.request(func(sh shared) (auth.ResetRequest, error) {
			in, err := defaultReqToIn[resetPassword](s, sh)
			if err != nil {
				return auth.ResetRequest{}, err
			}

			return auth.ResetRequest{
				UID:      sh.r.PathValue("uid"),
				Token:    sh.r.PathValue("token"),
				Password: in.Password,
			}, nil
		})
		h.onSuccess(func(r result[auth.ResetRequest, struct{}]) error {
			http.Redirect(r.w, r.r, "/reset-password/done", http.StatusFound)
			return nil
		})
		h.onFail(func(sh shared, err error) {
			if isInvalidInput(err) {
				s.redirectWithFlash(sh, "Passwords need to be between 8 and 512 characters.", sh.r.URL.Path)
				return
			}

			s.handleError(sh.w, sh.r, err)
		})

		s.publicOnly(route, h)
	}
	{
		s.publicOnly("GET /reset-password/done", s.viewHandler("reset-password-done"))
	}

	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(s.deps.DistFS)))

	// Wrap the mux with the global middlewares.
	csrfMW := csrf.Protect(
		cfg.CSRFKey.SecretValue(),
		csrf.CookieName(csrfTokenCookieName),
		csrf.FieldName(csrfTokenField),
		csrf.Secure(cfg.SecureCookie),
	)

	middlewares := []func(http.Handler) http.Handler{
		csrfMW,
		s.sessionMiddleware,
	}
	s.handler = s.mux
	for i := len(middlewares) - 1; i >= 0; i-- {
		s.handler = middlewares[i](s.handler)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// viewHandler returns a handler that renders the view with the given
// name without any view specific data.
func (s *Server) viewHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := s.writeView(w, r, name, nil)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
	}
}

// redirectWithFlashErr adds a flash message to the session and
// redirects the visitor.
func (s *Server) redirectWithFlashErr(sh shared, flash, url string) error {
	sh.sess.AddFlash(flash)
	err := s.deps.SessionStore.Save(sh.r, sh.w, sh.sess)
	if err != nil {
		return err
	}

	http.Redirect(sh.w, sh.r, url, http.StatusFound)
	return nil
}

// redirectWithFlash is redirectWithFlashErr for callers that have no
// way to propagate errors.
func (s *Server) redirectWithFlash(sh shared, flash, url string) {
	err := s.redirectWithFlashErr(sh, flash, url)
	if err != nil {
		s.handleError(sh.w, sh.r, err)
	}
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errorz.ErrNotFound) || errors.Is(err, auth.ErrInvalidResetLink) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	if isInvalidInput(err) {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}

	s.deps.Logger.Error("internal server error", "url", r.URL.String(), "error", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func isInvalidInput(err error) bool {
	var invalidInput errorz.InvalidInput
	return errors.As(err, &invalidInput) || errors.Is(err, auth.ErrInvalidPassword)
}
