// Command seed-admin creates an admin account in the configured store.
//
//	STORE_DRIVER=bolt BOLT_PATH=./data/auth.db seed-admin -email ops@example.com
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/jrsteele09/go-admin-auth/auth"
	"github.com/jrsteele09/go-admin-auth/internal/config"
	errs "github.com/jrsteele09/go-admin-auth/internal/errors"
	"github.com/jrsteele09/go-admin-auth/internal/logging"
	"github.com/jrsteele09/go-admin-auth/internal/wiring"
	"github.com/jrsteele09/go-admin-auth/token"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func main() {
	email := flag.String("email", "", "email address of the admin account")
	flag.Parse()

	if err := run(context.Background(), *email, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "seed-admin: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, email string, w io.Writer) error {
	if email == "" {
		return errors.New("-email is required")
	}

	c, err := config.Load()
	if err != nil {
		return err
	}
	if c.GetStoreDriver() == config.StoreDriverMemory {
		return fmt.Errorf("STORE_DRIVER=%s keeps nothing, choose %s or %s", config.StoreDriverMemory, config.StoreDriverBolt, config.StoreDriverMongo)
	}
	logger := logging.New(c.GetEnv(), c.GetLogLevel())

	repos, closeStore, err := wiring.OpenStore(ctx, c, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	codec, err := token.NewCodecFromConfig(c)
	if err != nil {
		return err
	}
	svc, err := auth.NewService(repos, codec, auth.WithLogger(logger))
	if err != nil {
		return err
	}

	password, err := promptPassword(w)
	if err != nil {
		return err
	}

	account, err := svc.Register(ctx, email, password)
	if err != nil {
		var ve *auth.ValidationError
		switch {
		case errors.As(err, &ve):
			return fmt.Errorf("invalid input: %s", ve.Error())
		case errs.Is(err, errs.ErrConflict):
			return fmt.Errorf("an account for %s already exists", email)
		}
		return err
	}

	fmt.Fprintf(w, "Created admin account %s (%s)\n", account.Email, account.ID)
	return nil
}

// promptPassword reads the password twice without echo.
func promptPassword(w io.Writer) (string, error) {
	fmt.Fprint(w, "Password: ")
	first, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	fmt.Fprint(w, "Confirm password: ")
	second, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	if !bytes.Equal(first, second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}
