package mcp

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tume-mail/tume/internal/errors"
)

const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable_http"
)

const (
	authHeader    = "Authorization"
	bearerPrefix  = "Bearer "
	unauthorized  = "unauthorized"
	headerMissing = "authorization header is required"
)

// ParseTransport validates a transport name; empty means stdio.
func ParseTransport(s string) (string, *errors.XError) {
	switch s {
	case "", TransportStdio:
		return TransportStdio, nil
	case TransportStreamableHTTP:
		return s, nil
	default:
		return "", errors.New(errors.CodeCfgInvalid, "invalid mcp transport", map[string]any{
			"transport": s,
			"allowed":   []string{TransportStdio, TransportStreamableHTTP},
		})
	}
}

// CheckListenAddr validates host:port and reports whether it only accepts local connections.
// An empty host (":8787") listens on every interface.
func CheckListenAddr(addr string) (bool, *errors.XError) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return false, errors.Wrap(errors.CodeCfgInvalid, "invalid mcp http listen address", map[string]any{"addr": addr}, err)
	}
	if host == "localhost" {
		return true, nil
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback(), nil
}

// NewStreamableHTTPHandler creates a streamable HTTP handler with required auth.
func NewStreamableHTTPHandler(server *mcp.Server, authToken string) (http.Handler, error) {
	if server == nil {
		return nil, errors.New(errors.CodeInternal, "mcp server is nil", nil)
	}
	if authToken == "" {
		return nil, errors.New(errors.CodeCfgInvalid, "mcp streamable http auth token is required", nil)
	}
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{JSONResponse: true})
	return requireAuth(handler, authToken), nil
}

func requireAuth(next http.Handler, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		// Status responses describe the local credential setup; keep them out of caches.
		w.Header().Set("Cache-Control", "no-store")
		auth := strings.TrimSpace(req.Header.Get(authHeader))
		if auth == "" {
			deny(w, headerMissing)
			return
		}
		if !strings.HasPrefix(auth, bearerPrefix) {
			deny(w, unauthorized)
			return
		}
		received := strings.TrimPrefix(auth, bearerPrefix)
		if subtle.ConstantTimeCompare([]byte(received), []byte(token)) != 1 {
			deny(w, unauthorized)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func deny(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="tume"`)
	http.Error(w, msg, http.StatusUnauthorized)
}
