package web

import (
	"net/http"
	"strconv"

	"github.com/hpungsan/spellbook/internal/knowledge"
	"github.com/hpungsan/spellbook/internal/ops"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	vault    *ops.Vault
	renderer *Renderer
}

// HandleEntities handles GET /entities: entities, most recently mentioned first.
func (h *Handlers) HandleEntities(w http.ResponseWriter, r *http.Request) {
	entityType := r.URL.Query().Get("type")
	result, err := ops.ListEntities(h.vault.DB, ops.ListEntitiesInput{
		Type:   entityType,
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	h.renderer.renderPage(w, "entities", EntitiesPageData{
		PageData:   h.renderer.page("Entities", "entities"),
		Items:      result.Items,
		Pagination: result.Pagination,
		Type:       entityType,
		Types:      knowledge.NewTypeSet(h.vault.Config.ExtraEntityTypes).Sorted(),
	})
}

// HandleEntity handles GET /entities/{name}: one entity by any of its names.
func (h *Handlers) HandleEntity(w http.ResponseWriter, r *http.Request) {
	result, err := ops.GetEntity(h.vault.DB, ops.GetEntityInput{
		Name:     r.PathValue("name"),
		DocLimit: parseIntParam(r, "doc_limit", ops.DefaultDocLimit),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	h.renderer.renderPage(w, "entity", EntityPageData{
		PageData:  h.renderer.page(result.Entity.Name, "entities"),
		Entity:    result.Entity,
		Aliases:   result.Aliases,
		Documents: result.Documents,
	})
}

// HandleDocs handles GET /docs: indexed documents, newest first.
func (h *Handlers) HandleDocs(w http.ResponseWriter, r *http.Request) {
	result, err := ops.ListDocuments(h.vault.DB, parseIntParam(r, "limit", ops.DefaultListLimit))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	h.renderer.renderPage(w, "docs", DocsPageData{
		PageData: h.renderer.page("Documents", "docs"),
		Items:    result.Items,
	})
}

// HandleDoc handles GET /docs/{id...}: a document with its rendered body.
func (h *Handlers) HandleDoc(w http.ResponseWriter, r *http.Request) {
	result, err := ops.GetDocument(h.vault, r.PathValue("id"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	title := result.Document.Title
	if title == "" {
		title = result.Document.DocID
	}
	h.renderer.renderPage(w, "doc", DocPageData{
		PageData:     h.renderer.page(title, "docs"),
		Document:     result.Document,
		Entities:     result.Entities,
		RenderedHTML: h.renderer.renderMarkdown(result.Body),
	})
}

// HandleSessions handles GET /sessions: sessions with token totals.
func (h *Handlers) HandleSessions(w http.ResponseWriter, r *http.Request) {
	result, err := ops.ListSessions(h.vault.DB, parseIntParam(r, "limit", ops.DefaultListLimit))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	h.renderer.renderPage(w, "sessions", SessionsPageData{
		PageData: h.renderer.page("Sessions", "sessions"),
		Items:    result.Items,
	})
}

// HandleSession handles GET /sessions/{id}: one session with its subagent calls.
func (h *Handlers) HandleSession(w http.ResponseWriter, r *http.Request) {
	result, err := ops.GetSession(h.vault.DB, r.PathValue("id"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	title := result.Session.Slug
	if title == "" {
		title = result.Session.ID
	}
	h.renderer.renderPage(w, "session", SessionPageData{
		PageData: h.renderer.page(title, "sessions"),
		Session:  result.Session,
		Calls:    result.Calls,
	})
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
