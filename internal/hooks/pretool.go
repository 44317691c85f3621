package hooks

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/hpungsan/spellbook/internal/capture"
	"github.com/hpungsan/spellbook/internal/knowledge"
	"github.com/hpungsan/spellbook/internal/ops"
)

// Pretool handles a dispatch tool call. When the target agent's definition
// declares load_references, the prompt is rewritten to load them first.
// Anything else passes through with no output.
func Pretool(ctx context.Context, r io.Reader, w io.Writer) error {
	return writeResponse(w, pretool(ctx, r))
}

func pretool(_ context.Context, r io.Reader) *Response {
	in, ok := decodeInput(r)
	if !ok || in.ToolInput == nil {
		return nil
	}
	v, err := ops.LoadVault(in.Cwd)
	if err != nil {
		return nil
	}
	if !isDispatchTool(in.ToolName, v.Config.DispatchTools) {
		return nil
	}

	agentType, _ := in.ToolInput["subagent_type"].(string)
	refs := LoadReferences(v.Paths.AgentsDir(), agentType)
	if len(refs) == 0 {
		return nil
	}

	original, _ := in.ToolInput["prompt"].(string)
	updated := make(map[string]any, len(in.ToolInput))
	for k, val := range in.ToolInput {
		updated[k] = val
	}
	updated["prompt"] = ReferencePrefix(refs) + original

	return &Response{HookSpecificOutput: &SpecificOutput{
		HookEventName:      EventPreToolUse,
		PermissionDecision: "allow",
		UpdatedInput:       updated,
	}}
}

func isDispatchTool(name string, tools []string) bool {
	for _, t := range tools {
		if t == name {
			return true
		}
	}
	return false
}

// ReferencePrefix builds the instruction block placed before the prompt.
func ReferencePrefix(refs []string) string {
	if len(refs) == 0 {
		return ""
	}
	lines := []string{"FIRST: Load your reference files before doing anything else:"}
	for _, ref := range refs {
		lines = append(lines, "  cat "+ref)
	}
	lines = append(lines, "", "Then proceed with your task:", "")
	return strings.Join(lines, "\n")
}

// LoadReferences returns the load_references of the agent named agentType,
// or nil when there is no definition or it declares none.
func LoadReferences(agentsDir, agentType string) []string {
	path := findAgentFile(agentsDir, agentType)
	if path == "" {
		return nil
	}
	raw, err := capture.ReadFileNoFollow(path)
	if err != nil {
		return nil
	}
	fields, _, ok := knowledge.ReadFrontMatter(raw)
	if !ok {
		return nil
	}
	return knowledge.Strings(fields, "load_references")
}

// findAgentFile looks for <slug>.md first, then for a definition whose
// frontmatter name equals agentType.
func findAgentFile(agentsDir, agentType string) string {
	agentType = strings.TrimSpace(agentType)
	if agentType == "" {
		return ""
	}
	if slug := AgentSlug(agentType); slug != "" {
		path := filepath.Join(agentsDir, slug+".md")
		if info, err := os.Lstat(path); err == nil && info.Mode().IsRegular() {
			return path
		}
	}

	matches, err := filepath.Glob(filepath.Join(agentsDir, "*.md"))
	if err != nil {
		return ""
	}
	sort.Strings(matches)
	for _, path := range matches {
		raw, err := capture.ReadFileNoFollow(path)
		if err != nil {
			continue
		}
		fields, _, ok := knowledge.ReadFrontMatter(raw)
		if ok && knowledge.String(fields, "name") == agentType {
			return path
		}
	}
	return ""
}

// AgentSlug derives a definition file name from an agent label:
// "📜 Archivist" becomes "archivist" and "🤖 AI Engineer" "ai-engineer".
func AgentSlug(agentType string) string {
	name := strings.TrimSpace(agentType)
	name = strings.TrimLeftFunc(name, func(r rune) bool { return r > unicode.MaxASCII })
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "-")
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return ""
	}
	return name
}
