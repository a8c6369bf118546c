// Command adduser creates a user account. There is no self-service
// registration, accounts are provisioned by an operator with this
// command.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dstam/groundwork/internal/auth"
	authdb "github.com/dstam/groundwork/internal/auth/db"
	"github.com/dstam/groundwork/internal/db"
	"github.com/dstam/groundwork/internal/email"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)

	var (
		dbFile   = fs.String("db", "groundwork.db", "sqlite database file")
		addr     = fs.String("email", "", "email address of the new user")
		password = fs.String("password", "", "password of the new user")
		inactive = fs.Bool("inactive", false, "create the user as inactive")
		scopes   = fs.String("scopes", "", "comma separated scope codes to grant, scopes are created if they don't exist")
	)

	if err := fs.Parse(args); err != nil {
		return 1
	}

	emailAddr, err := email.ParseAddress(*addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid email address: %v\n", err)
		return 1
	}

	pwd, err := auth.ParsePassword(*password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid password: %v\n", err)
		return 1
	}

	hash, err := pwd.Hash()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		return 1
	}

	sqlDB, err := db.OpenSQLite(*dbFile, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		return 1
	}

	defer func() {
		if err := sqlDB.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close database: %v\n", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*60)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Second)
	user := auth.User{
		Email:        emailAddr,
		PasswordHash: hash,
		IsActive:     !*inactive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := authdb.New(sqlDB).BeginTx(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to begin tx: %v\n", err)
		return 1
	}

	defer func() {
		_ = tx.Rollback()
	}()

	if err := tx.CreateUser(&user); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create user: %v\n", err)
		return 1
	}

	for _, code := range splitScopes(*scopes) {
		// Create the scope if it doesn't exist yet, granting fails on
		// unknown scopes.
		found, err := tx.FindScopes(&auth.ScopeFilter{Codes: []string{code}})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to find scope %q: %v\n", code, err)
			return 1
		}

		if len(found) == 0 {
			if err := tx.CreateScope(&auth.Scope{Code: code}); err != nil {
				fmt.Fprintf(os.Stderr, "failed to create scope %q: %v\n", code, err)
				return 1
			}
		}

		if err := tx.GrantScope(user.ID, code); err != nil {
			fmt.Fprintf(os.Stderr, "failed to grant scope %q: %v\n", code, err)
			return 1
		}
	}

	if err := tx.Commit(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to commit tx: %v\n", err)
		return 1
	}

	fmt.Printf("created user %d: %s\n", user.ID, user.Email)
	return 0
}

func splitScopes(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}
