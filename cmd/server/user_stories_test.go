package main

import (
	"context"
	"html"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/dstam/groundwork/internal/auth"
	authdb "github.com/dstam/groundwork/internal/auth/db"
	"github.com/dstam/groundwork/internal/db"
	"github.com/dstam/groundwork/internal/db/migrate"
	"github.com/dstam/groundwork/internal/email"
	"github.com/dstam/groundwork/migrations"
)

// Test_UserStories tests the user stories of the application.
// These are end-to-end tests and won't check the nitty-gritty details or edge cases.
func Test_UserStories(t *testing.T) {
	const (
		userEmail    = "agent@example.com"
		userPassword = "reallyStrongPassword1"
		newPassword  = "evenStrongerPassword2"
	)

	t.Run("as a user, I want to", testEnv(func(t *testing.T) {
		createTestUser(t, "groundwork-unit-test.db", userEmail, userPassword)

		// runAppForTest waits for the app to be up and stops it after the test finishes.
		runAppForTest(t)

		c := newClient(t)

		t.Run("view the login form", func(t *testing.T) {
			body := c.mustGetBody(t, "/login", http.StatusOK)

			// Symbolic check for the form. I'm not checking the HTML too much,
			// because I don't want every change to the front-end to break these tests.
			symbol := `id="login"`
			if !strings.Contains(body, symbol) {
				t.Errorf("did not find\n%s\nin body\n%s", symbol, body)
			}
		})

		t.Run("log in with my credentials", func(t *testing.T) {
			body := c.mustSubmitForm(t, "/login", url.Values{
				"Email":    {userEmail},
				"Password": {userPassword},
			})

			if !strings.Contains(body, "You are logged in.") {
				t.Errorf("expected to be logged in, got body\n%s", body)
			}
		})

		t.Run("change my password", func(t *testing.T) {
			body := c.mustSubmitForm(t, "/change-password", url.Values{
				"CurrentPassword": {userPassword},
				"NewPassword":     {newPassword},
			})

			if !strings.Contains(body, "Your password has been changed.") {
				t.Errorf("expected password change confirmation, got body\n%s", body)
			}
		})

		t.Run("log out", func(t *testing.T) {
			body := c.mustSubmitForm(t, "/", url.Values{})

			if strings.Contains(body, "You are logged in.") {
				t.Errorf("expected to be logged out, got body\n%s", body)
			}
		})

		t.Run("log in with my changed password", func(t *testing.T) {
			body := c.mustSubmitForm(t, "/login", url.Values{
				"Email":    {userEmail},
				"Password": {newPassword},
			})

			if !strings.Contains(body, "You are logged in.") {
				t.Errorf("expected to be logged in, got body\n%s", body)
			}
		})
	}))

	t.Run("as a user that forgot their password, I want to", testEnv(func(t *testing.T) {
		createTestUser(t, "groundwork-unit-test.db", userEmail, userPassword)

		logs := runAppForTest(t)

		c := newClient(t)

		var resetURL string

		t.Run("request a password reset link", func(t *testing.T) {
			body := c.mustSubmitForm(t, "/forgot-password", url.Values{
				"Email": {userEmail},
			})

			if !strings.Contains(body, "Check your inbox") {
				t.Errorf("expected confirmation page, got body\n%s", body)
			}

			// wait for the reset email to be logged.
			resetURL = waitAndCaptureResetURL(t, logs, userEmail)
			t.Logf("found reset url: %s", resetURL)
		})

		t.Run("open the reset link and pick a new password", func(t *testing.T) {
			path := strings.TrimPrefix(resetURL, baseURL)

			body := c.mustSubmitForm(t, path, url.Values{
				"Password": {newPassword},
			})

			if !strings.Contains(body, "Your password was reset") {
				t.Errorf("expected reset confirmation, got body\n%s", body)
			}
		})

		t.Run("log in with my new password", func(t *testing.T) {
			body := c.mustSubmitForm(t, "/login", url.Values{
				"Email":    {userEmail},
				"Password": {newPassword},
			})

			if !strings.Contains(body, "You are logged in.") {
				t.Errorf("expected to be logged in, got body\n%s", body)
			}
		})

		t.Run("not be able to use the reset link twice", func(t *testing.T) {
			path := strings.TrimPrefix(resetURL, baseURL)

			c.mustGetBody(t, path, http.StatusNotFound)
		})
	}))
}

// createTestUser migrates the database and inserts an active user, the
// way an operator would with the adduser command.
func createTestUser(t *testing.T, dbFile, addr, password string) {
	t.Helper()

	sqlDB, err := db.OpenSQLite(dbFile, true)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	defer func() {
		if err := sqlDB.Close(); err != nil {
			t.Fatalf("failed to close database: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := migrate.RunFS(ctx, sqlDB, migrations.FS, migrate.Metadata{}); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	pwd, err := auth.ParsePassword(password)
	if err != nil {
		t.Fatalf("failed to parse password: %v", err)
	}

	hash, err := pwd.Hash()
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	emailAddr, err := email.ParseAddress(addr)
	if err != nil {
		t.Fatalf("failed to parse email address: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	user := auth.User{
		Email:        emailAddr,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := authdb.New(sqlDB).BeginTx(ctx)
	if err != nil {
		t.Fatalf("failed to begin tx: %v", err)
	}

	if err := tx.CreateUser(&user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("failed to commit tx: %v", err)
	}
}

// runAppForTest runs the app while the test is running.
// This function returns after the app is confirmed to be up and stops
// the app when the test is cleaned up.
func runAppForTest(t *testing.T) *safeBuffer {
	t.Helper()

	buf := newBuffer()

	// we will stop the server after a timeout or when the test is cleaned up.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(func() {
		cancel()

		if t.Failed() {
			t.Logf("app output:\n%s", buf.String())
		}
	})

	go func() {
		code := run(ctx, buf)
		if code != 0 {
			t.Errorf("run exited with code %d", code)
		}

		cancel()
	}()

	err := waitForStatusOK(ctx, publicURL)
	if err != nil {
		t.Fatalf("error waiting for status ok: %v", err)
	}

	return buf
}

type client struct {
	http *http.Client
}

func newClient(t *testing.T) *client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create cookie jar: %v", err)
	}

	return &client{
		http: &http.Client{
			Timeout: httpClientTimeout,
			Jar:     jar,
		},
	}
}

func (c *client) mustGetBody(t *testing.T, path string, wantStatus int) string {
	t.Helper()

	res, err := c.http.Get(baseURL + path)
	if err != nil {
		t.Fatalf("unexpected error during get request: %v", err)
	}

	defer func() {
		err := res.Body.Close()
		if err != nil {
			t.Fatalf("unexpected error closing response body: %v", err)
		}
	}()

	if res.StatusCode != wantStatus {
		t.Fatalf("unexpected status code: %d", res.StatusCode)
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("unexpected error reading response body: %v", err)
	}

	return string(data)
}

var csrfTokenPattern = regexp.MustCompile(`name="csrf-token" value="([^"]+)"`)

// mustSubmitForm gets the page containing the form to obtain a CSRF
// token, posts the form and returns the body of the final response
// after any redirects.
func (c *client) mustSubmitForm(t *testing.T, path string, form url.Values) string {
	t.Helper()

	page := c.mustGetBody(t, path, http.StatusOK)

	m := csrfTokenPattern.FindStringSubmatch(page)
	if m == nil {
		t.Fatalf("no csrf token found in body\n%s", page)
	}
	// The token is HTML-escaped in the page; unescape it the way a
	// browser would before submitting the form.
	form.Set("csrf-token", html.UnescapeString(m[1]))

	// Forms post to the page they were served on, except on the
	// homepage where the only form is the logout button.
	action := path
	if path == "/" {
		action = "/logout"
	}

	res, err := c.http.PostForm(baseURL+action, form)
	if err != nil {
		t.Fatalf("unexpected error during post request: %v", err)
	}

	defer func() {
		err := res.Body.Close()
		if err != nil {
			t.Fatalf("unexpected error closing response body: %v", err)
		}
	}()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status code: %d", res.StatusCode)
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("unexpected error reading response body: %v", err)
	}

	return string(data)
}

func waitAndCaptureResetURL(t *testing.T, logs *safeBuffer, addr string) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	captureFunc := func() (string, bool) {
		lookFor := []string{
			`msg="send email"`,
			`subject="Reset your password"`,
			"recipient=" + addr,
		}

	OUTER:
		for _, line := range strings.Split(logs.String(), "\n") {
			for _, l := range lookFor {
				if !strings.Contains(line, l) {
					continue OUTER
				}
			}

			url, ok := extractResetURL(line)
			if ok {
				return url, true
			}
		}

		return "", false
	}

	for {
		select {
		case <-ticker.C:
			if url, ok := captureFunc(); ok {
				return url
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for email to %s", addr)
		}
	}
}

func extractResetURL(s string) (string, bool) {
	s = strings.ReplaceAll(s, `\n`, " ")
	r := regexp.MustCompile(`\bhttps?://localhost:8888/reset-password\S+`)
	result := r.FindString(s)
	if result == "" {
		return "", false
	}
	return result, true
}
