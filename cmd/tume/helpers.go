package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tume-mail/tume/internal/app"
	"github.com/tume-mail/tume/internal/credential"
	"github.com/tume-mail/tume/internal/errors"
	"github.com/tume-mail/tume/internal/keyring"
	"github.com/tume-mail/tume/internal/log"
	"github.com/tume-mail/tume/internal/output"
	"github.com/tume-mail/tume/internal/secret"
)

// parseOutputFormat parses and validates the output format string
func parseOutputFormat(s string) (output.Format, error) {
	f := output.Format(s)
	if !output.IsValid(f) {
		return "", errors.New(errors.CodeCfgInvalid, "invalid output format", map[string]any{"format": s, "allowed": output.Formats()})
	}
	return resolveAuto(f), nil
}

// resolveFormatForError resolves the format for error output
func resolveFormatForError(s string) output.Format {
	f := output.Format(s)
	if !output.IsValid(f) {
		f = output.FormatAuto
	}
	return resolveAuto(f)
}

// resolveAuto resolves "auto" format to appropriate format based on TTY
func resolveAuto(f output.Format) output.Format {
	if f != output.FormatAuto {
		return f
	}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return output.FormatTable
	}
	return output.FormatJSON
}

// normalizeErr normalizes any error to XError
func normalizeErr(err error) *errors.XError {
	if xe, ok := errors.As(err); ok {
		return xe
	}
	// Preserve original error message
	return errors.Wrap(errors.CodeInternal, err.Error(), nil, err)
}

// annotateErr adds the hints a caller needs to decide between retrying and resetting.
func annotateErr(xe *errors.XError) *errors.XError {
	if !errors.Retryable(xe.Code) && !errors.ResetRequired(xe.Code) {
		return xe
	}
	if xe.Details == nil {
		xe.Details = map[string]any{}
	}
	if errors.Retryable(xe.Code) {
		xe.Details["retryable"] = true
	}
	if errors.ResetRequired(xe.Code) {
		xe.Details["reset_required"] = true
	}
	return xe
}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

// newKeyring is replaced in tests with an in-memory keyring.
var newKeyring = keyring.Default

func newLogger() *slog.Logger {
	return log.New(os.Stderr, GlobalConfig.Verbose)
}

// openStore opens the credential store described by the resolved config.
// A store is returned alongside the error when its state is known, so reset still works.
func openStore(ctx context.Context) (*credential.Store, *errors.XError) {
	return app.OpenStore(ctx, app.StoreOptions{
		Config:  GlobalConfig.Resolved,
		Keyring: newKeyring(),
		Logger:  newLogger(),
	})
}

// promptPassword reads a line from the terminal without echo. Replaced in tests.
var promptPassword = func(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New(errors.CodeCfgInvalid, "stdin is not a terminal; supply secrets via environment", map[string]any{"prompt": prompt})
	}
	_, _ = fmt.Fprint(os.Stderr, prompt)
	p, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, errors.Wrap(errors.CodeIO, "failed to read password", nil, err)
	}
	return p, nil
}

// takeEnvSecret returns the variable and removes it from the process environment.
func takeEnvSecret(name string) ([]byte, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil, false
	}
	_ = os.Unsetenv(name)
	return []byte(v), true
}

// readSecret prefers the environment and falls back to an interactive prompt.
func readSecret(env, prompt string) ([]byte, error) {
	if p, ok := takeEnvSecret(env); ok {
		return p, nil
	}
	return promptPassword(prompt)
}

// readNewMasterPassword asks twice when prompting. An environment value is taken as confirmed.
func readNewMasterPassword(env string, minLen int) ([]byte, error) {
	if p, ok := takeEnvSecret(env); ok {
		if xe := credential.ValidateMasterPassword(p, p, minLen); xe != nil {
			secret.Wipe(p)
			return nil, xe
		}
		return p, nil
	}
	p, err := promptPassword("New master password: ")
	if err != nil {
		return nil, err
	}
	confirm, err := promptPassword("Confirm master password: ")
	if err != nil {
		secret.Wipe(p)
		return nil, err
	}
	defer secret.Wipe(confirm)
	if xe := credential.ValidateMasterPassword(p, confirm, minLen); xe != nil {
		secret.Wipe(p)
		return nil, xe
	}
	return p, nil
}

// unlockIfLocked asks for the master password only when the file vault is locked.
func unlockIfLocked(s *credential.Store) error {
	if s.Status().State != credential.StateLocked {
		return nil
	}
	pw, err := readSecret("TUME_MASTER_PASSWORD", "Master password: ")
	if err != nil {
		return err
	}
	defer secret.Wipe(pw)
	if xe := s.Unlock(pw); xe != nil {
		return xe
	}
	return nil
}
