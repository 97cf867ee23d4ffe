package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tume-mail/tume/internal/app"
	"github.com/tume-mail/tume/internal/config"
	"github.com/tume-mail/tume/internal/credential"
	"github.com/tume-mail/tume/internal/errors"
	"github.com/tume-mail/tume/internal/keyring"
	"github.com/tume-mail/tume/internal/output"
	"github.com/tume-mail/tume/internal/provider"
	"github.com/tume-mail/tume/internal/secret"
)

// NewCredsCommand creates the creds command group
func NewCredsCommand(w *output.Writer) *cobra.Command {
	credsCmd := &cobra.Command{
		Use:   "creds",
		Short: "Manage stored IMAP/SMTP credentials",
	}

	credsCmd.AddCommand(newCredsProbeCommand(w))
	credsCmd.AddCommand(newCredsStatusCommand(w))
	credsCmd.AddCommand(newCredsSetupCommand(w))
	credsCmd.AddCommand(newCredsUnlockCommand(w))
	credsCmd.AddCommand(newCredsShowCommand(w))
	credsCmd.AddCommand(newCredsPasswdCommand(w))
	credsCmd.AddCommand(newCredsMigrateCommand(w))
	credsCmd.AddCommand(newCredsResetCommand(w))

	return credsCmd
}

type statusOutput struct {
	credential.StatusInfo `yaml:",inline"`
	ConfigPath            string              `json:"config_path,omitempty" yaml:"config_path,omitempty"`
	Error                 *output.ErrorObject `json:"error,omitempty" yaml:"error,omitempty"`
}

func newStatusOutput(s *credential.Store, openErr *errors.XError) statusOutput {
	out := statusOutput{StatusInfo: s.Status(), ConfigPath: GlobalConfig.Resolved.ConfigPath}
	if openErr != nil {
		out.Error = &output.ErrorObject{Code: openErr.Code, Message: openErr.Message, Details: openErr.Details}
	}
	return out
}

type bundleOutput struct {
	Backend keyring.Backend    `json:"backend" yaml:"backend"`
	Bundle  credential.Summary `json:"bundle" yaml:"bundle"`
}

func newCredsProbeCommand(w *output.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Probe the OS keyring and report which backend would be used",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCredsProbe(cmd, w)
		},
	}
}

func runCredsProbe(cmd *cobra.Command, w *output.Writer) error {
	format, err := parseOutputFormat(GlobalConfig.FormatStr)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	s, xe := openStore(ctx)
	if s == nil {
		return xe
	}
	defer s.Close()
	return w.WriteOK(format, s.ProbeBackend(ctx))
}

func newCredsStatusCommand(w *output.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show credential backend, lock state and vault metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCredsStatus(cmd, w)
		},
	}
}

func runCredsStatus(cmd *cobra.Command, w *output.Writer) error {
	format, err := parseOutputFormat(GlobalConfig.FormatStr)
	if err != nil {
		return err
	}
	s, xe := openStore(commandContext(cmd))
	if s == nil {
		return xe
	}
	defer s.Close()
	// A corrupt vault still reports its state; the error tells the user to reset.
	return w.WriteOK(format, newStatusOutput(s, xe))
}

// SetupFlags holds the flags for creds setup
type SetupFlags struct {
	Provider  string
	Email     string
	IMAPHost  string
	IMAPPort  uint16
	IMAPUser  string
	SMTPHost  string
	SMTPPort  uint16
	SMTPUser  string
	AccountID string
	Name      string
}

func newCredsSetupCommand(w *output.Writer) *cobra.Command {
	flags := &SetupFlags{}
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Store IMAP/SMTP credentials (first run or after reset)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCredsSetup(cmd, flags, w)
		},
	}
	cmd.Flags().StringVar(&flags.Provider, "provider", provider.Custom, "Provider preset id (see providers list)")
	cmd.Flags().StringVar(&flags.Email, "email", "", "Email address; default username for IMAP and SMTP")
	cmd.Flags().StringVar(&flags.IMAPHost, "imap-host", "", "IMAP server host")
	cmd.Flags().Uint16Var(&flags.IMAPPort, "imap-port", 0, "IMAP server port")
	cmd.Flags().StringVar(&flags.IMAPUser, "imap-user", "", "IMAP username")
	cmd.Flags().StringVar(&flags.SMTPHost, "smtp-host", "", "SMTP server host")
	cmd.Flags().Uint16Var(&flags.SMTPPort, "smtp-port", 0, "SMTP server port")
	cmd.Flags().StringVar(&flags.SMTPUser, "smtp-user", "", "SMTP username")
	cmd.Flags().StringVar(&flags.AccountID, "account-id", "default", "Account id saved in config")
	cmd.Flags().StringVar(&flags.Name, "name", "", "Account display name")
	return cmd
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

func runCredsSetup(cmd *cobra.Command, flags *SetupFlags, w *output.Writer) error {
	format, err := parseOutputFormat(GlobalConfig.FormatStr)
	if err != nil {
		return err
	}

	preset := provider.Provider{ID: provider.Custom}
	if flags.Provider != "" && flags.Provider != provider.Custom {
		p, ok := provider.ByID(flags.Provider)
		if !ok {
			return errors.New(errors.CodeCfgInvalid, "unknown provider", map[string]any{"provider": flags.Provider, "allowed": provider.IDs()})
		}
		preset = p
	}

	s, xe := openStore(commandContext(cmd))
	if s == nil {
		return xe
	}
	defer s.Close()
	if xe != nil {
		return xe
	}
	if s.IsConfigured() {
		return errors.New(errors.CodeInvalidState, "credentials already configured; run creds reset first", map[string]any{"backend": string(s.Selection().Backend)})
	}

	scope := secret.NewScope()
	defer scope.Close()

	b := &credential.Bundle{
		IMAPHost: []byte(flags.IMAPHost),
		IMAPPort: flags.IMAPPort,
		IMAPUser: []byte(firstNonEmpty(flags.IMAPUser, flags.Email)),
		SMTPHost: []byte(flags.SMTPHost),
		SMTPPort: flags.SMTPPort,
		SMTPUser: []byte(firstNonEmpty(flags.SMTPUser, flags.IMAPUser, flags.Email)),
	}
	scope.Defer(b.Wipe)
	preset.Apply(b)
	if xe := b.Validate(); xe != nil {
		return xe
	}

	imapPw, err := readSecret("TUME_IMAP_PASSWORD", "IMAP password: ")
	if err != nil {
		return err
	}
	b.IMAPPassword = imapPw
	smtpPw, err := readSecret("TUME_SMTP_PASSWORD", "SMTP password (empty to reuse IMAP password): ")
	if err != nil {
		return err
	}
	if len(smtpPw) == 0 {
		smtpPw = append([]byte(nil), imapPw...)
	}
	b.SMTPPassword = smtpPw

	var master []byte
	if s.Selection().Backend == keyring.BackendFile {
		master, err = readNewMasterPassword("TUME_MASTER_PASSWORD", GlobalConfig.Resolved.MinPasswordLength)
		if err != nil {
			return err
		}
		scope.TrackBytes(master)
	}
	if xe := s.Setup(b, master); xe != nil {
		return xe
	}

	result := map[string]any{"status": s.Status()}
	if flags.Email != "" {
		path, xe := accountConfigPath()
		if xe != nil {
			return xe
		}
		acct := config.Account{Name: firstNonEmpty(flags.Name, flags.Email), Email: flags.Email, Provider: preset.ID}
		if xe := config.SaveAccount(path, flags.AccountID, acct); xe != nil {
			// Credentials are stored; only the account metadata write failed.
			if xe.Details == nil {
				xe.Details = map[string]any{}
			}
			xe.Details["credentials_saved"] = true
			return xe
		}
		result["account"] = flags.AccountID
		result["config_path"] = path
	}
	return w.WriteOK(format, result)
}

func accountConfigPath() (string, *errors.XError) {
	if GlobalConfig.Resolved.ConfigPath != "" {
		return GlobalConfig.Resolved.ConfigPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(errors.CodeIO, "failed to locate home directory", nil, err)
	}
	return config.DefaultConfigPath(home), nil
}

func newCredsUnlockCommand(w *output.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Verify the master password against the encrypted vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCredsUnlock(cmd, w)
		},
	}
}

func runCredsUnlock(cmd *cobra.Command, w *output.Writer) error {
	format, err := parseOutputFormat(GlobalConfig.FormatStr)
	if err != nil {
		return err
	}
	s, xe := openStore(commandContext(cmd))
	if s == nil {
		return xe
	}
	defer s.Close()
	if xe != nil {
		return xe
	}
	if s.Status().State == credential.StateLocked {
		if err := unlockIfLocked(s); err != nil {
			return err
		}
	} else if xe := s.Unlock(nil); xe != nil {
		// Not configured, or keyring backend: the store reports the precise state error.
		return xe
	}
	return writeBundle(s, format, w)
}

func writeBundle(s *credential.Store, format output.Format, w *output.Writer) error {
	// WithBundle holds the store lock, so the callback must not call back into s.
	out := bundleOutput{Backend: s.Selection().Backend}
	err := s.WithBundle(func(b *credential.Bundle) error {
		out.Bundle = b.Summarize()
		return nil
	})
	if err != nil {
		return err
	}
	return w.WriteOK(format, out)
}

func newCredsShowCommand(w *output.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show stored server settings with passwords masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCredsShow(cmd, w)
		},
	}
}

func runCredsShow(cmd *cobra.Command, w *output.Writer) error {
	format, err := parseOutputFormat(GlobalConfig.FormatStr)
	if err != nil {
		return err
	}
	s, xe := openStore(commandContext(cmd))
	if s == nil {
		return xe
	}
	defer s.Close()
	if xe != nil {
		return xe
	}
	if err := unlockIfLocked(s); err != nil {
		return err
	}
	return writeBundle(s, format, w)
}

func newCredsPasswdCommand(w *output.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the master password of the encrypted vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCredsPasswd(cmd, w)
		},
	}
}

func runCredsPasswd(cmd *cobra.Command, w *output.Writer) error {
	format, err := parseOutputFormat(GlobalConfig.FormatStr)
	if err != nil {
		return err
	}
	s, xe := openStore(commandContext(cmd))
	if s == nil {
		return xe
	}
	defer s.Close()
	if xe != nil {
		return xe
	}

	scope := secret.NewScope()
	defer scope.Close()
	var oldPw, newPw []byte
	if s.Selection().Backend == keyring.BackendFile && s.IsConfigured() {
		oldPw, err = readSecret("TUME_MASTER_PASSWORD", "Current master password: ")
		if err != nil {
			return err
		}
		scope.TrackBytes(oldPw)
		newPw, err = readNewMasterPassword("TUME_NEW_MASTER_PASSWORD", GlobalConfig.Resolved.MinPasswordLength)
		if err != nil {
			return err
		}
		scope.TrackBytes(newPw)
	}
	if xe := s.ChangeMasterPassword(oldPw, newPw); xe != nil {
		return xe
	}
	return w.WriteOK(format, map[string]any{"changed": true, "status": s.Status()})
}

func newCredsMigrateCommand(w *output.Writer) *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Move credentials to another backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCredsMigrate(cmd, to, w)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Target backend: keyring|file")
	return cmd
}

func runCredsMigrate(cmd *cobra.Command, to string, w *output.Writer) error {
	format, err := parseOutputFormat(GlobalConfig.FormatStr)
	if err != nil {
		return err
	}
	target, xe := app.ParseBackend(to)
	if xe != nil {
		return xe
	}
	ctx := commandContext(cmd)
	s, xe := openStore(ctx)
	if s == nil {
		return xe
	}
	defer s.Close()
	if xe != nil {
		return xe
	}
	from := s.Selection().Backend
	if target == from {
		return errors.New(errors.CodeInvalidState, "credentials already use this backend", map[string]any{"backend": string(target)})
	}
	if err := unlockIfLocked(s); err != nil {
		return err
	}

	var newPw []byte
	if target == keyring.BackendFile && s.Status().State == credential.StateUnlocked {
		newPw, err = readNewMasterPassword("TUME_NEW_MASTER_PASSWORD", GlobalConfig.Resolved.MinPasswordLength)
		if err != nil {
			return err
		}
		defer secret.Wipe(newPw)
	}
	if xe := s.Migrate(ctx, target, newPw); xe != nil {
		return xe
	}
	return w.WriteOK(format, map[string]any{"from": from, "to": target, "status": s.Status()})
}

func newCredsResetCommand(w *output.Writer) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete stored credentials from the active backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCredsReset(cmd, yes, w)
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}

func runCredsReset(cmd *cobra.Command, yes bool, w *output.Writer) error {
	format, err := parseOutputFormat(GlobalConfig.FormatStr)
	if err != nil {
		return err
	}
	if !yes {
		return errors.New(errors.CodeCfgInvalid, "reset deletes stored credentials; pass --yes to confirm", nil)
	}
	s, xe := openStore(commandContext(cmd))
	if s == nil {
		return xe
	}
	defer s.Close()
	// A store that failed to open (corrupt or unreadable) is Locked and can still be reset.
	if xe := s.Reset(); xe != nil {
		return xe
	}
	return w.WriteOK(format, map[string]any{"reset": true, "status": s.Status()})
}
