package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/koustreak/userfed/internal/credential"
	"github.com/koustreak/userfed/internal/provider"
)

var errRejected = errors.New("credentials rejected")

func newVerifyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify USERNAME",
		Short: "Check one username and password",
		Long:  "Check one username and password. The password is prompted for without echo on a terminal, otherwise the first line of stdin is used.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ok, err := a.verify(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			if !ok {
				return errRejected
			}
			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		},
	}
}

// readPassword reads the password without echo when r is a terminal and
// falls back to the first line of r otherwise.
func readPassword(r io.Reader, prompt io.Writer) (string, error) {
	if f, ok := r.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password (input will be hidden): ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// verify runs one validation in direct mode so no pool is built for a
// single check.
func (a *app) verify(ctx context.Context, username, password string) (bool, error) {
	cfg, err := a.loadOnce(ctx)
	if err != nil {
		return false, err
	}
	cfg.UseConnectionPool = false

	p := provider.New(provider.WithLogger(a.log))
	defer p.Shutdown()
	if err := p.Initialize(ctx, cfg); err != nil {
		return false, err
	}

	user := &credential.User{Name: username}
	input := credential.CredentialInput{Type: credential.PasswordType, Challenge: password}
	return p.Verifier().ValidatePassword(ctx, user, input), nil
}
