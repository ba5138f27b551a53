// Package mcp exposes the current inventory over the Model Context
// Protocol so agents can query hosts and groups without parsing the full
// dynamic-inventory dump.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/paularlott/mcp"

	"github.com/mhagberg/towerbox/internal/inventory"
	"github.com/mhagberg/towerbox/internal/log"
)

// Source provides the most recently built inventory document. It returns
// nil before the first successful refresh.
type Source interface {
	Current() *inventory.Document
}

// Server wraps the MCP server with an inventory source
type Server struct {
	mcpServer   *mcp.Server
	source      Source
	bearerToken string
}

// NewServer creates an MCP server over the given inventory source
func NewServer(source Source, bearerToken string) *Server {
	s := &Server{
		mcpServer:   mcp.NewServer("towerbox", "1.0.0"),
		source:      source,
		bearerToken: bearerToken,
	}
	s.registerTools()
	return s
}

// registerTools registers the read-only inventory tools
func (s *Server) registerTools() {
	s.mcpServer.RegisterTool(
		mcp.NewTool("inventory_list", "Get the full inventory document: all groups with their hosts plus _meta.hostvars"),
		s.handleInventoryList,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("host_get", "Get the hostvars for a single host by name",
			mcp.String("name", "Host name (FQDN as known to NetBox)", mcp.Required()),
		),
		s.handleHostGet,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("group_list", "List inventory groups with their host counts"),
		s.handleGroupList,
	)
}

// HandleRequest handles MCP HTTP requests with optional bearer token authentication
func (s *Server) HandleRequest(w http.ResponseWriter, r *http.Request) {
	log.Debug("MCP request received", "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)

	if s.bearerToken != "" {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			log.Warn("MCP request missing Authorization header", "remote_addr", r.RemoteAddr)
			http.Error(w, "Unauthorized: Missing Authorization header", http.StatusUnauthorized)
			return
		}
		if !strings.HasPrefix(auth, "Bearer ") {
			log.Warn("MCP request invalid Authorization format", "remote_addr", r.RemoteAddr)
			http.Error(w, "Unauthorized: Invalid Authorization format", http.StatusUnauthorized)
			return
		}
		if strings.TrimPrefix(auth, "Bearer ") != s.bearerToken {
			log.Warn("MCP request invalid token", "remote_addr", r.RemoteAddr)
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}
	}

	s.mcpServer.HandleRequest(w, r)
}

// GetHTTPHandler returns the HTTP handler for the MCP server
func (s *Server) GetHTTPHandler() http.HandlerFunc {
	return s.HandleRequest
}

func (s *Server) handleInventoryList(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	doc := s.source.Current()
	if doc == nil {
		return nil, mcp.NewToolErrorInternal("inventory not built yet")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		log.Error("MCP inventory list failed", "error", err)
		return nil, mcp.NewToolErrorInternal("serializing inventory: " + err.Error())
	}
	return mcp.NewToolResponseText(string(data)), nil
}

func (s *Server) handleHostGet(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	name, err := req.String("name")
	if err != nil {
		log.Warn("MCP host get - missing name", "error", err)
		return nil, mcp.NewToolErrorInvalidParams("name is required: " + err.Error())
	}

	doc := s.source.Current()
	if doc == nil {
		return nil, mcp.NewToolErrorInternal("inventory not built yet")
	}

	vars := doc.HostVars(name)
	if len(vars) == 0 {
		return nil, mcp.NewToolErrorInternal("host not found: " + name)
	}
	data, err := json.Marshal(vars)
	if err != nil {
		return nil, mcp.NewToolErrorInternal("serializing hostvars: " + err.Error())
	}
	log.Debug("MCP host retrieved", "name", name)
	return mcp.NewToolResponseText(string(data)), nil
}

func (s *Server) handleGroupList(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	doc := s.source.Current()
	if doc == nil {
		return nil, mcp.NewToolErrorInternal("inventory not built yet")
	}

	sizes := doc.GroupSizes()
	if len(sizes) == 0 {
		return mcp.NewToolResponseText("No groups in inventory"), nil
	}

	names := make([]string, 0, len(sizes))
	for name := range sizes {
		names = append(names, name)
	}
	sort.Strings(names)

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Found %d groups:\n", len(names)))
	for _, name := range names {
		result.WriteString(fmt.Sprintf("- %s (%d hosts)\n", name, sizes[name]))
	}
	return mcp.NewToolResponseText(result.String()), nil
}
