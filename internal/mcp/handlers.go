package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/spellbook/internal/errors"
	"github.com/hpungsan/spellbook/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	vault *ops.Vault
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(v *ops.Vault) *Handlers {
	return &Handlers{vault: v}
}

// Request types for each tool

// EntityListRequest represents the arguments for entity_list.
type EntityListRequest struct {
	Type   string `json:"type,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// EntityGetRequest represents the arguments for entity_get.
type EntityGetRequest struct {
	Name     string `json:"name"`
	DocLimit int    `json:"doc_limit,omitempty"`
}

// EntityDocsRequest represents the arguments for entity_docs.
type EntityDocsRequest struct {
	Name  string `json:"name"`
	Limit int    `json:"limit,omitempty"`
}

// NameRequest represents the arguments for entity_resolve and alias_list.
type NameRequest struct {
	Name string `json:"name,omitempty"`
}

// EntityRecallRequest represents the arguments for entity_recall.
type EntityRecallRequest struct {
	Text        string `json:"text"`
	MaxEntities int    `json:"max_entities,omitempty"`
	DocsPer     int    `json:"docs_per,omitempty"`
}

// AliasAddRequest represents the arguments for alias_add.
type AliasAddRequest struct {
	Alias     string `json:"alias"`
	Canonical string `json:"canonical"`
	Type      string `json:"type,omitempty"`
}

// LimitRequest represents the arguments for doc_list and session_list.
type LimitRequest struct {
	Limit int `json:"limit,omitempty"`
}

// DocGetRequest represents the arguments for doc_get.
type DocGetRequest struct {
	DocID string `json:"doc_id"`
}

// SessionGetRequest represents the arguments for session_get.
type SessionGetRequest struct {
	ID string `json:"id"`
}

// Handler implementations

// HandleEntityList handles the entity_list tool call.
func (h *Handlers) HandleEntityList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[EntityListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListEntities(h.vault.DB, ops.ListEntitiesInput{
		Type:   input.Type,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleEntityGet handles the entity_get tool call.
func (h *Handlers) HandleEntityGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[EntityGetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.GetEntity(h.vault.DB, ops.GetEntityInput{
		Name:     input.Name,
		DocLimit: input.DocLimit,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleEntityDocs handles the entity_docs tool call.
func (h *Handlers) HandleEntityDocs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[EntityDocsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.EntityDocs(h.vault.DB, ops.EntityDocsInput{
		Name:  input.Name,
		Limit: input.Limit,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleEntityResolve handles the entity_resolve tool call.
func (h *Handlers) HandleEntityResolve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[NameRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Resolve(h.vault.DB, input.Name)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleEntityRecall handles the entity_recall tool call.
func (h *Handlers) HandleEntityRecall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[EntityRecallRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Recall(h.vault.DB, ops.RecallInput{
		Text:        input.Text,
		MaxEntities: input.MaxEntities,
		DocsPer:     input.DocsPer,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleAliasAdd handles the alias_add tool call.
// A conflict is a successful call with added=false.
func (h *Handlers) HandleAliasAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AliasAddRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.AddAlias(ctx, h.vault, ops.AddAliasInput{
		Alias:     input.Alias,
		Canonical: input.Canonical,
		Type:      input.Type,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleAliasList handles the alias_list tool call.
func (h *Handlers) HandleAliasList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[NameRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListAliases(h.vault.DB, input.Name)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDocList handles the doc_list tool call.
func (h *Handlers) HandleDocList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LimitRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListDocuments(h.vault.DB, input.Limit)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDocGet handles the doc_get tool call.
func (h *Handlers) HandleDocGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DocGetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.GetDocument(h.vault, input.DocID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSessionList handles the session_list tool call.
func (h *Handlers) HandleSessionList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LimitRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListSessions(h.vault.DB, input.Limit)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSessionGet handles the session_get tool call.
func (h *Handlers) HandleSessionGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionGetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.GetSession(h.vault.DB, input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleIndexRebuild handles the index_rebuild tool call.
func (h *Handlers) HandleIndexRebuild(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Rebuild(ctx, h.vault, nil)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleVaultStatus handles the vault_status tool call.
func (h *Handlers) HandleVaultStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Status(h.vault)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if sErr, ok := errors.As(err); ok {
		msg := sErr.Message
		if _, direct := err.(*errors.SpellbookError); !direct {
			// Keep the wrapper's context.
			msg = err.Error()
		}
		errorObj := map[string]any{
			"code":    sErr.Code,
			"message": msg,
			"status":  sErr.Status,
		}
		if sErr.Code == errors.ErrInternal {
			errorObj["message"] = "an internal error occurred"
		} else if sErr.Details != nil {
			errorObj["details"] = sErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
