package web

import (
	"net/http"

	"github.com/gorilla/csrf"

	"github.com/dstam/groundwork/internal"
)

// viewData is the data passed to every rendered view.
type viewData struct {
	Version   string
	CSRFToken string
	LoggedIn  bool
	UserID    int64
	Flashes   []any
	Data      any
}

// writeView renders the named view to the response. Consuming the
// flashes modifies the session, so the session is saved before any of
// the response body is written.
func (s *Server) writeView(w http.ResponseWriter, r *http.Request, name string, data any) error {
	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		return err
	}

	p := principalFromCtx(r.Context())

	vd := &viewData{
		Version:   internal.BuildRevision,
		CSRFToken: csrf.Token(r),
		LoggedIn:  p.IsAuthenticated(),
		UserID:    p.UserID,
		Flashes:   sess.ConsumeFlashes(),
		Data:      data,
	}

	if sess.NeedsSave() {
		err = s.deps.SessionStore.Save(r, w, sess)
		if err != nil {
			return err
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return s.deps.ViewRenderer.Render(w, name, vd)
}
