package mcp

import (
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/spellbook/internal/ops"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"entity_list": {
		def:     entityListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEntityList },
	},
	"entity_get": {
		def:     entityGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEntityGet },
	},
	"entity_docs": {
		def:     entityDocsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEntityDocs },
	},
	"entity_resolve": {
		def:     entityResolveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEntityResolve },
	},
	"entity_recall": {
		def:     entityRecallToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEntityRecall },
	},
	"alias_add": {
		def:     aliasAddToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAliasAdd },
	},
	"alias_list": {
		def:     aliasListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAliasList },
	},
	"doc_list": {
		def:     docListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDocList },
	},
	"doc_get": {
		def:     docGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDocGet },
	},
	"session_list": {
		def:     sessionListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionList },
	},
	"session_get": {
		def:     sessionGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionGet },
	},
	"index_rebuild": {
		def:     indexRebuildToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleIndexRebuild },
	},
	"vault_status": {
		def:     vaultStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleVaultStatus },
	},
}

// AllToolNames returns every tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates an MCP server exposing the vault's index.
// Tools listed in the vault's disabled_tools are not registered.
func NewServer(v *ops.Vault, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"spellbook",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(v)

	disabled := make(map[string]bool)
	for _, name := range v.Config.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(v *ops.Vault, version string) error {
	return server.ServeStdio(NewServer(v, version))
}
