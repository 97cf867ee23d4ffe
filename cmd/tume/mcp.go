package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/tume-mail/tume/internal/app"
	"github.com/tume-mail/tume/internal/credential"
	"github.com/tume-mail/tume/internal/errors"
	mcp_pkg "github.com/tume-mail/tume/internal/mcp"
)

const defaultMCPHTTPAddr = "127.0.0.1:8787"

// NewMCPCommand creates the MCP command group
func NewMCPCommand() *cobra.Command {
	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "MCP (Model Context Protocol) server commands",
	}

	mcpCmd.AddCommand(newMCPServerCommand())

	return mcpCmd
}

// newMCPServerCommand creates the MCP server command
func newMCPServerCommand() *cobra.Command {
	opts := &mcpServerOptions{}
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start a read-only MCP server (never exposes secrets)",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.transportSet = cmd.Flags().Changed("transport")
			opts.httpAddrSet = cmd.Flags().Changed("http-addr")
			opts.httpAuthTokenSet = cmd.Flags().Changed("http-auth-token")
			return runMCPServer(commandContext(cmd), opts)
		},
	}
	cmd.Flags().StringVar(&opts.transport, "transport", mcp_pkg.TransportStdio, "MCP transport: stdio|streamable_http")
	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", defaultMCPHTTPAddr, "Streamable HTTP listen address")
	cmd.Flags().StringVar(&opts.httpAuthToken, "http-auth-token", "", "Streamable HTTP auth token (required for streamable_http)")
	return cmd
}

// mcpToolOptions wires the MCP tools to the resolved configuration.
func mcpToolOptions() mcp_pkg.Options {
	cfg := GlobalConfig.Resolved
	logger := newLogger()
	return mcp_pkg.Options{
		NewStore: func() *credential.Store {
			return app.NewStore(app.StoreOptions{Config: cfg, Keyring: newKeyring(), Logger: logger})
		},
		Keyring:      newKeyring(),
		ProbeTimeout: cfg.ProbeTimeout,
		Accounts:     cfg.Accounts,
	}
}

// runMCPServer runs the MCP server
func runMCPServer(ctx context.Context, opts *mcpServerOptions) error {
	resolved, xe := resolveMCPServerOptions(opts)
	if xe != nil {
		return xe
	}

	// Create MCP server using official SDK
	server, err := mcp_pkg.CreateServer(version, mcpToolOptions())
	if err != nil {
		return errors.AsOrWrap(err)
	}

	switch resolved.transport {
	case mcp_pkg.TransportStdio:
		return server.Run(ctx, &mcp.StdioTransport{})
	case mcp_pkg.TransportStreamableHTTP:
		handler, err := mcp_pkg.NewStreamableHTTPHandler(server, resolved.httpAuthToken)
		if err != nil {
			return errors.AsOrWrap(err)
		}
		httpServer := &http.Server{
			Addr:              resolved.httpAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		logger := newLogger()
		if !resolved.loopback {
			logger.Warn("mcp server reachable from other hosts", "addr", resolved.httpAddr)
		}
		logger.Info("mcp server listening", "addr", resolved.httpAddr)
		return httpServer.ListenAndServe()
	default:
		return errors.New(errors.CodeCfgInvalid, "unsupported mcp transport", map[string]any{"transport": resolved.transport})
	}
}

type mcpServerOptions struct {
	transport        string
	transportSet     bool
	httpAddr         string
	httpAddrSet      bool
	httpAuthToken    string
	httpAuthTokenSet bool
}

type mcpServerResolved struct {
	transport     string
	httpAddr      string
	httpAuthToken string
	loopback      bool
}

func resolveMCPServerOptions(opts *mcpServerOptions) (mcpServerResolved, *errors.XError) {
	if opts == nil {
		opts = &mcpServerOptions{}
	}

	transport, xe := mcp_pkg.ParseTransport(firstNonEmpty(
		valueIfSet(opts.transportSet, opts.transport),
		os.Getenv("TUME_MCP_TRANSPORT"),
	))
	if xe != nil {
		return mcpServerResolved{}, xe
	}

	httpAddr := firstNonEmpty(
		valueIfSet(opts.httpAddrSet, opts.httpAddr),
		os.Getenv("TUME_MCP_HTTP_ADDR"),
	)
	if httpAddr == "" {
		httpAddr = defaultMCPHTTPAddr
	}
	loopback, xe := mcp_pkg.CheckListenAddr(httpAddr)
	if xe != nil && transport == mcp_pkg.TransportStreamableHTTP {
		return mcpServerResolved{}, xe
	}

	authToken := firstNonEmpty(
		valueIfSet(opts.httpAuthTokenSet, opts.httpAuthToken),
		os.Getenv("TUME_MCP_HTTP_AUTH_TOKEN"),
	)
	if transport == mcp_pkg.TransportStreamableHTTP && authToken == "" {
		return mcpServerResolved{}, errors.New(errors.CodeCfgInvalid, "streamable http transport requires auth token", nil)
	}

	return mcpServerResolved{
		transport:     transport,
		httpAddr:      httpAddr,
		httpAuthToken: authToken,
		loopback:      loopback,
	}, nil
}

func valueIfSet(set bool, value string) string {
	if !set {
		return ""
	}
	return value
}
