package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/dstam/groundwork/internal/errorz"
	"github.com/dstam/groundwork/internal/web/sessions"
	"github.com/gorilla/schema"
)

// shared bundles the request scoped values that both the success and
// failure paths of a mapper need.
type shared struct {
	s    *Server
	w    http.ResponseWriter
	r    *http.Request
	sess *sessions.Session
}

// result is the outcome of a successful target function call. It
// contains all relevant request data because we can't know in advance
// what will be needed to construct a response.
type result[IN, OUT any] struct {
	shared
	in  IN
	out OUT
}

// mapper is a generic HTTP handler that maps requests to target
// function calls and writes the output to the response. The request
// mapping and response writing can be customized per route.
type mapper[IN, OUT any] struct {
	s           *Server
	reqToInFunc func(shared) (IN, error)
	targetFunc  func(context.Context, IN) (OUT, error)
	successFunc func(result[IN, OUT]) error
	failFunc    func(shared, error)
}

// newHandler creates a HTTP handler that:
// 1. Maps the request to a value of input type IN.
// 2. Calls the target func with that value.
// 3. Writes the output of type OUT to the response.
//
// Errors are written using the server error handler unless onFail is
// overwritten.
func newHandler[IN, OUT any](srv *Server, targetFunc func(context.Context, IN) (OUT, error)) *mapper[IN, OUT] {
	return &mapper[IN, OUT]{
		s: srv,
		reqToInFunc: func(sh shared) (IN, error) {
			return defaultReqToIn[IN](srv, sh)
		},
		targetFunc: targetFunc,
		successFunc: func(r result[IN, OUT]) error {
			http.Redirect(r.w, r.r, "/", http.StatusFound)
			return nil
		},
		failFunc: func(sh shared, err error) {
			srv.handleError(sh.w, sh.r, err)
		},
	}
}

// newInputHandler is like newHandler for target funcs that only
// consume input and produce no output.
func newInputHandler[IN any](srv *Server, targetFunc func(context.Context, IN) error) *mapper[IN, struct{}] {
	return newHandler(srv, func(ctx context.Context, in IN) (struct{}, error) {
		return struct{}{}, targetFunc(ctx, in)
	})
}

// request overwrites the function that maps the request to the input type.
func (m *mapper[IN, OUT]) request(fn func(shared) (IN, error)) *mapper[IN, OUT] {
	m.reqToInFunc = fn
	return m
}

// onSuccess overwrites the function that writes the output to the response.
func (m *mapper[IN, OUT]) onSuccess(fn func(result[IN, OUT]) error) *mapper[IN, OUT] {
	m.successFunc = fn
	return m
}

// onFail overwrites the function that handles request mapping and
// target func errors.
func (m *mapper[IN, OUT]) onFail(fn func(shared, error)) *mapper[IN, OUT] {
	m.failFunc = fn
	return m
}

func (m *mapper[IN, OUT]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		m.s.handleError(w, r, err)
		return
	}

	sh := shared{s: m.s, w: w, r: r, sess: sess}

	in, err := m.reqToInFunc(sh)
	if err != nil {
		m.failFunc(sh, err)
		return
	}

	out, err := m.targetFunc(r.Context(), in)
	if err != nil {
		m.failFunc(sh, err)
		return
	}

	err = m.successFunc(result[IN, OUT]{shared: sh, in: in, out: out})
	if err != nil {
		m.s.handleError(w, r, err)
	}
}

// defaultReqToIn is the default way to map a request to a struct.
func defaultReqToIn[IN any](srv *Server, sh shared) (IN, error) {
	var in IN
	err := sh.r.ParseForm()
	if err != nil {
		return in, err
	}

	// Remove the CSRF token from the form, it won't need to be mapped
	// to any target types and the decoder would fail on it.
	sh.r.Form.Del(csrfTokenField)

	err = srv.decoder.Decode(&in, sh.r.Form)
	return in, decodeError(err)
}

// decodeError converts schema decoding errors to invalid input errors,
// so they end up as 4xx instead of 5xx responses.
func decodeError(err error) error {
	if err == nil {
		return nil
	}

	var multiErr schema.MultiError
	if errors.As(err, &multiErr) {
		var invalidInput errorz.InvalidInput
		for key, e := range multiErr {
			invalidInput = append(invalidInput, errorz.Keyed{
				Key: key,
				Err: e,
			})
		}

		return invalidInput
	}

	return err
}
