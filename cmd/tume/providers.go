package main

import (
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tume-mail/tume/internal/errors"
	"github.com/tume-mail/tume/internal/output"
	"github.com/tume-mail/tume/internal/provider"
)

// NewProvidersCommand creates the providers command group
func NewProvidersCommand(w *output.Writer) *cobra.Command {
	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "Email provider presets",
	}

	providersCmd.AddCommand(newProvidersListCommand(w))
	providersCmd.AddCommand(newProvidersShowCommand(w))

	return providersCmd
}

type providerList struct {
	Providers []provider.Provider `json:"providers" yaml:"providers"`
}

// ToTableData renders one preset per row.
func (l providerList) ToTableData() ([]string, []map[string]any, bool) {
	cols := []string{"id", "name", "imap", "smtp"}
	rows := make([]map[string]any, 0, len(l.Providers))
	for _, p := range l.Providers {
		rows = append(rows, map[string]any{
			"id":   p.ID,
			"name": p.Name,
			"imap": hostPort(p.IMAPHost, p.IMAPPort),
			"smtp": hostPort(p.SMTPHost, p.SMTPPort),
		})
	}
	return cols, rows, true
}

func hostPort(host string, port uint16) string {
	if host == "" {
		return ""
	}
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}

// newProvidersListCommand creates the providers list command
func newProvidersListCommand(w *output.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List email provider presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(GlobalConfig.FormatStr)
			if err != nil {
				return err
			}
			return w.WriteOK(format, providerList{Providers: provider.All()})
		},
	}
}

// newProvidersShowCommand creates the providers show command
func newProvidersShowCommand(w *output.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show a provider preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(GlobalConfig.FormatStr)
			if err != nil {
				return err
			}
			p, ok := provider.ByID(args[0])
			if !ok {
				return errors.New(errors.CodeCfgInvalid, "provider not found", map[string]any{"id": args[0], "allowed": provider.IDs()})
			}
			return w.WriteOK(format, p)
		},
	}
}
