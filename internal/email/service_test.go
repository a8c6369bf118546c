package email_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dstam/groundwork/internal/email"
	"github.com/dstam/groundwork/internal/errorz/testerr"
)

func Test_Service_SendMessage(t *testing.T) {
	const from = email.Address("noreply@example.com")
	const recipient = email.Address("alice@example.com")

	t.Run("ok, renders and sends", func(t *testing.T) {
		renderer := &fakeRenderer{
			subject: "  Reset your password \n",
			body:    "Hi Alice, click here.",
		}
		sender := email.NewMemorySender()

		svc := email.NewService(renderer, sender, from)

		err := svc.SendMessage(context.Background(), "password-reset", recipient, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(sender.Emails) != 1 {
			t.Fatalf("got %d emails, want 1", len(sender.Emails))
		}

		got := sender.Emails[0]
		if got.From != from {
			t.Errorf("got from %q, want %q", got.From, from)
		}
		if got.Recipient != recipient {
			t.Errorf("got recipient %q, want %q", got.Recipient, recipient)
		}
		if got.Subject != "Reset your password" {
			t.Errorf("got subject %q, want trimmed subject", got.Subject)
		}
		if got.Body != "Hi Alice, click here." {
			t.Errorf("got body %q, want %q", got.Body, "Hi Alice, click here.")
		}
	})

	t.Run("fail, renderer errors", func(t *testing.T) {
		renderer := &fakeRenderer{err: testerr.Err}
		sender := email.NewMemorySender()

		svc := email.NewService(renderer, sender, from)

		err := svc.SendMessage(context.Background(), "password-reset", recipient, nil)
		if !errors.Is(err, testerr.Err) {
			t.Fatalf("got %v, want %v (via errors.Is)", err, testerr.Err)
		}

		if len(sender.Emails) != 0 {
			t.Errorf("got %d emails, want 0", len(sender.Emails))
		}
	})

	t.Run("fail, sender errors", func(t *testing.T) {
		renderer := &fakeRenderer{
			subject: "Reset your password",
			body:    "Hi Alice, click here.",
		}
		sender := &failingSender{err: testerr.Err}

		svc := email.NewService(renderer, sender, from)

		err := svc.SendMessage(context.Background(), "password-reset", recipient, nil)
		if !errors.Is(err, testerr.Err) {
			t.Fatalf("got %v, want %v (via errors.Is)", err, testerr.Err)
		}
	})
}

type fakeRenderer struct {
	subject string
	body    string
	err     error
}

func (f *fakeRenderer) Render(_ context.Context, name string, element email.TemplateElement, _ any) (string, error) {
	if f.err != nil {
		return "", f.err
	}

	switch element {
	case email.ElementSubject:
		return f.subject, nil
	case email.ElementBody:
		return f.body, nil
	}

	return "", fmt.Errorf("unknown element %q for %q", element, name)
}

type failingSender struct {
	err error
}

func (f *failingSender) Send(_ context.Context, _, _ email.Address, _, _ string) error {
	return f.err
}
