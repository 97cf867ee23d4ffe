package main

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/tume-mail/tume/internal/config"
	"github.com/tume-mail/tume/internal/output"
)

// NewAccountsCommand creates the accounts command group
func NewAccountsCommand(w *output.Writer) *cobra.Command {
	accountsCmd := &cobra.Command{
		Use:   "accounts",
		Short: "Account metadata saved after setup",
	}

	accountsCmd.AddCommand(newAccountsListCommand(w))

	return accountsCmd
}

type accountInfo struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Email    string `json:"email" yaml:"email"`
	Provider string `json:"provider" yaml:"provider"`
	Default  bool   `json:"default" yaml:"default"`
}

type accountList struct {
	ConfigPath string        `json:"config_path" yaml:"config_path"`
	Accounts   []accountInfo `json:"accounts" yaml:"accounts"`
}

// ToTableData renders one account per row.
func (l accountList) ToTableData() ([]string, []map[string]any, bool) {
	cols := []string{"id", "name", "email", "provider", "default"}
	rows := make([]map[string]any, 0, len(l.Accounts))
	for _, a := range l.Accounts {
		rows = append(rows, map[string]any{
			"id":       a.ID,
			"name":     a.Name,
			"email":    a.Email,
			"provider": a.Provider,
			"default":  a.Default,
		})
	}
	return cols, rows, true
}

// newAccountsListCommand creates the accounts list command
func newAccountsListCommand(w *output.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(GlobalConfig.FormatStr)
			if err != nil {
				return err
			}
			return w.WriteOK(format, listAccounts(GlobalConfig.Resolved))
		},
	}
}

func listAccounts(r config.Resolved) accountList {
	defaultID, _, _ := config.DefaultAccount(r.Accounts)
	list := accountList{ConfigPath: r.ConfigPath, Accounts: make([]accountInfo, 0, len(r.Accounts))}
	for id, a := range r.Accounts {
		list.Accounts = append(list.Accounts, accountInfo{
			ID:       id,
			Name:     a.Name,
			Email:    a.Email,
			Provider: a.Provider,
			Default:  id == defaultID,
		})
	}
	sort.Slice(list.Accounts, func(i, j int) bool {
		ai, aj := r.Accounts[list.Accounts[i].ID], r.Accounts[list.Accounts[j].ID]
		if ai.DisplayOrder != aj.DisplayOrder {
			return ai.DisplayOrder < aj.DisplayOrder
		}
		return list.Accounts[i].ID < list.Accounts[j].ID
	})
	return list
}
