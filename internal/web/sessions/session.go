package sessions

import (
	"github.com/gorilla/sessions"
)

// Session wraps a gorilla session and tracks whether it was
// modified and still needs to be saved.
type Session struct {
	base      *sessions.Session
	needsSave bool
}

func (s *Session) NeedsSave() bool {
	return s.needsSave
}

// UserID returns the user ID stored in the session. The second
// return value is false if the session has no user ID.
func (s *Session) UserID() (int64, bool) {
	userID, ok := s.base.Values["userID"].(int64)
	return userID, ok
}

func (s *Session) SetUserID(userID int64) {
	s.needsSave = true
	s.base.Values["userID"] = userID
}

func (s *Session) DeleteUserID() {
	s.needsSave = true
	delete(s.base.Values, "userID")
}

func (s *Session) AddFlash(flash any, vars ...string) {
	s.needsSave = true
	s.base.AddFlash(flash, vars...)
}

// ConsumeFlashes returns all flashes and removes them from the session.
func (s *Session) ConsumeFlashes() []any {
	flashes := s.base.Flashes()
	if len(flashes) > 0 {
		s.needsSave = true
	}

	return flashes
}
