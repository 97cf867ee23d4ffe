package mcp

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tume-mail/tume/internal/config"
	"github.com/tume-mail/tume/internal/credential"
	"github.com/tume-mail/tume/internal/errors"
	"github.com/tume-mail/tume/internal/keyring"
	"github.com/tume-mail/tume/internal/provider"
)

// The MCP surface is read-only and secret-free: no tool accepts a master
// password or returns any part of a credential bundle.

// ProviderShowInput represents the input for the provider_show tool
type ProviderShowInput struct {
	ID string `json:"id" jsonschema:"Provider preset id"`
}

// Options wires the tool handler to the credential layer.
type Options struct {
	// NewStore returns a fresh, unopened store. Each status call opens and closes its own.
	NewStore     func() *credential.Store
	Keyring      keyring.KeyringAPI
	ProbeTimeout time.Duration
	Accounts     map[string]config.Account
}

// ToolHandler manages MCP tools
type ToolHandler struct {
	opts Options
}

// NewToolHandler creates a new tool handler
func NewToolHandler(opts Options) *ToolHandler {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = credential.DefaultProbeTimeout
	}
	return &ToolHandler{opts: opts}
}

// RegisterTools registers all tools with the MCP server
func (h *ToolHandler) RegisterTools(server *mcp.Server) {
	mcp.AddTool[struct{}, any](server, &mcp.Tool{
		Name:        "backend_probe",
		Description: "Check whether the OS keyring is usable or the encrypted file backend would be used",
	}, h.BackendProbe)

	mcp.AddTool[struct{}, any](server, &mcp.Tool{
		Name:        "credential_status",
		Description: "Report credential backend, lock state and vault metadata (never secrets)",
	}, h.CredentialStatus)

	mcp.AddTool[struct{}, any](server, &mcp.Tool{
		Name:        "provider_list",
		Description: "List email provider presets",
	}, h.ProviderList)

	mcp.AddTool[struct{}, any](server, &mcp.Tool{
		Name:        "account_list",
		Description: "List configured account metadata",
	}, h.AccountList)

	ids := provider.IDs()
	idEnums := make([]any, len(ids))
	for i, id := range ids {
		idEnums[i] = id
	}
	server.AddTool(&mcp.Tool{
		Name:        "provider_show",
		Description: "Show IMAP/SMTP settings of a provider preset",
		InputSchema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"id"},
			Properties: map[string]*jsonschema.Schema{
				"id": {
					Type:        "string",
					Description: "Provider preset id",
					Enum:        idEnums,
				},
			},
		},
	}, h.providerShowHandler)
}

// providerShowHandler is the raw handler for provider_show tool
func (h *ToolHandler) providerShowHandler(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input ProviderShowInput
	if err := json.Unmarshal(req.Params.Arguments, &input); err != nil {
		return errorResult(errors.Wrap(errors.CodeCfgInvalid, "invalid input", nil, err)), nil
	}
	result, _, err := h.ProviderShow(ctx, req, input)
	return result, err
}

// BackendProbe runs the keyring round trip probe.
func (h *ToolHandler) BackendProbe(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	pctx, cancel := context.WithTimeout(ctx, h.opts.ProbeTimeout)
	defer cancel()
	sel := keyring.Probe(pctx, h.opts.Keyring)
	return okResult(map[string]any{
		"backend":       sel.Backend,
		"backend_label": sel.Backend.Label(),
		"reason":        sel.Reason,
	}), nil, nil
}

// CredentialStatus opens a short-lived store and reports its status.
func (h *ToolHandler) CredentialStatus(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, any, error) {
	if h.opts.NewStore == nil {
		return errorResult(errors.New(errors.CodeInternal, "credential store is not configured", nil)), nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s := h.opts.NewStore()
	defer s.Close()

	openErr := s.Open(ctx)
	st := s.Status()
	if openErr != nil && st.State == credential.StateUninitialized {
		return errorResult(openErr), nil, nil
	}
	data := map[string]any{"status": st}
	if openErr != nil {
		// 例如 vault 损坏：状态仍可报告，同时给出需要 reset 的原因
		data["error"] = map[string]any{"code": openErr.Code, "message": openErr.Message, "details": openErr.Details}
	}
	return okResult(data), nil, nil
}

// ProviderList lists provider presets
func (h *ToolHandler) ProviderList(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, any, error) {
	return okResult(map[string]any{"providers": provider.All()}), nil, nil
}

// ProviderShow shows a provider preset
func (h *ToolHandler) ProviderShow(ctx context.Context, req *mcp.CallToolRequest, input ProviderShowInput) (*mcp.CallToolResult, any, error) {
	if input.ID == "" {
		return errorResult(errors.New(errors.CodeCfgInvalid, "id is required", nil)), nil, nil
	}
	p, ok := provider.ByID(input.ID)
	if !ok {
		return errorResult(errors.New(errors.CodeCfgInvalid, "provider does not exist", map[string]any{"id": input.ID, "reason": "provider_not_found"})), nil, nil
	}
	return okResult(p), nil, nil
}

type accountInfo struct {
	ID string `json:"id"`
	config.Account
}

// AccountList lists configured accounts sorted by display order then id
func (h *ToolHandler) AccountList(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, any, error) {
	accounts := make([]accountInfo, 0, len(h.opts.Accounts))
	for id, a := range h.opts.Accounts {
		accounts = append(accounts, accountInfo{ID: id, Account: a})
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].DisplayOrder != accounts[j].DisplayOrder {
			return accounts[i].DisplayOrder < accounts[j].DisplayOrder
		}
		return accounts[i].ID < accounts[j].ID
	})
	return okResult(map[string]any{"accounts": accounts}), nil, nil
}

func okResult(data any) *mcp.CallToolResult {
	output := map[string]any{
		"ok":             true,
		"schema_version": 1,
		"data":           data,
	}
	jsonData, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return errorResult(errors.Wrap(errors.CodeInternal, "failed to marshal result", nil, err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonData)},
		},
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: formatError(err)},
		},
	}
}

// formatError formats an error as JSON
func formatError(err error) string {
	var xe *errors.XError
	if err != nil {
		xe = errors.AsOrWrap(err)
	} else {
		xe = errors.New(errors.CodeInternal, "unknown error", nil)
	}
	details := xe.Details
	if errors.ResetRequired(xe.Code) {
		details = map[string]any{"reset_required": true}
		for k, v := range xe.Details {
			details[k] = v
		}
	}
	output := map[string]any{
		"ok":             false,
		"schema_version": 1,
		"error": map[string]any{
			"code":    xe.Code,
			"message": xe.Message,
			"details": details,
		},
	}
	jsonData, _ := json.MarshalIndent(output, "", "  ")
	return string(jsonData)
}

// CreateServer creates a new MCP server
func CreateServer(version string, opts Options) (*mcp.Server, error) {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "tume",
		Version: version,
	}, nil)

	handler := NewToolHandler(opts)
	handler.RegisterTools(server)

	return server, nil
}
