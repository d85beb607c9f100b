package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/praylist/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register creates a new account protected by a password read from the
// terminal and prints the account id the user needs to sign in elsewhere.
func (a *App) Register(ctx context.Context) error {
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	account, err := a.auth.Register(ctx, password)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Account created: %s\nKeep this id, you need it to sign in on other devices.\n", account)
	return nil
}

// Login prompts for an account id and password and opens a session.
func (a *App) Login(ctx context.Context) error {
	account, err := getSimpleText(a.reader, "Enter account id", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.auth.Login(ctx, account, password); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Login successful")
	return a.records.Sync(ctx)
}

// Logout forgets the key and the local cache.
func (a *App) Logout(ctx context.Context) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}
