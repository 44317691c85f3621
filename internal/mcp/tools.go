package mcp

import "github.com/mark3labs/mcp-go/mcp"

var entityListToolDef = mcp.NewTool("entity_list",
	mcp.WithDescription("List indexed entities, most recently mentioned first."),
	mcp.WithString("type", mcp.Description("Only entities of this type (project, person, tool, repo, concept, org, ...)")),
	mcp.WithNumber("limit", mcp.Description("Max items (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
)

var entityGetToolDef = mcp.NewTool("entity_get",
	mcp.WithDescription("Get an entity by any of its names, with its aliases and latest documents."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Entity name or alias")),
	mcp.WithNumber("doc_limit", mcp.Description("Max documents (default 10, max 100)")),
)

var entityDocsToolDef = mcp.NewTool("entity_docs",
	mcp.WithDescription("List the documents that mention an entity, newest first."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Entity name or alias")),
	mcp.WithNumber("limit", mcp.Description("Max documents (default 10, max 100)")),
)

var entityResolveToolDef = mcp.NewTool("entity_resolve",
	mcp.WithDescription("Resolve any spelling of an entity to its canonical name."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Name to resolve")),
)

var entityRecallToolDef = mcp.NewTool("entity_recall",
	mcp.WithDescription("Find the known entities a piece of text mentions, with their latest documents."),
	mcp.WithString("text", mcp.Required(), mcp.Description("Free text to scan")),
	mcp.WithNumber("max_entities", mcp.Description("Max entities (default 5, max 20)")),
	mcp.WithNumber("docs_per", mcp.Description("Documents per entity (default 3)")),
)

var aliasAddToolDef = mcp.NewTool("alias_add",
	mcp.WithDescription("Register an alias for an entity. Persists across rebuilds. Returns added=false when the alias already names another entity."),
	mcp.WithString("alias", mcp.Required(), mcp.Description("Alternate spelling")),
	mcp.WithString("canonical", mcp.Required(), mcp.Description("Entity the alias refers to (resolved first)")),
	mcp.WithString("type", mcp.Description("Entity type")),
)

var aliasListToolDef = mcp.NewTool("alias_list",
	mcp.WithDescription("List aliases, optionally of one entity."),
	mcp.WithString("name", mcp.Description("Entity name or alias")),
)

var docListToolDef = mcp.NewTool("doc_list",
	mcp.WithDescription("List indexed knowledge documents, newest first."),
	mcp.WithNumber("limit", mcp.Description("Max items (default 20, max 100)")),
)

var docGetToolDef = mcp.NewTool("doc_get",
	mcp.WithDescription("Get an indexed document with its entities and markdown body."),
	mcp.WithString("doc_id", mcp.Required(), mcp.Description("Vault-relative document path")),
)

var sessionListToolDef = mcp.NewTool("session_list",
	mcp.WithDescription("List recorded sessions with token totals and per-agent breakdown."),
	mcp.WithNumber("limit", mcp.Description("Max items (default 20, max 100)")),
)

var sessionGetToolDef = mcp.NewTool("session_get",
	mcp.WithDescription("Get a session with every subagent call."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Session id")),
)

var indexRebuildToolDef = mcp.NewTool("index_rebuild",
	mcp.WithDescription("Rebuild the entity index from the knowledge documents. Usage telemetry is kept."),
)

var vaultStatusToolDef = mcp.NewTool("vault_status",
	mcp.WithDescription("Report vault metadata, pending buffer records and index counts."),
)
