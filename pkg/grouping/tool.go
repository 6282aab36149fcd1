package grouping

import (
	"fmt"
	"strings"

	"github.com/platinummonkey/nexus-mcp/pkg/catalog"
)

// maxListedOperations bounds the operation list rendered into the enum description
const maxListedOperations = 20

// Filter decides whether a caller may see an operation. A nil Filter allows everything.
type Filter func(op catalog.Operation) bool

// ToolFor builds the consolidated tool for a group. ops must be the group's
// member operations in member order. When filter excludes some members the
// enum is narrowed to the allowed subset; when it excludes all of them, or the
// group is disabled, ok is false and the group must not be advertised.
func ToolFor(g *Group, ops []catalog.Operation, filter Filter) (tool catalog.Tool, ok bool) {
	if !g.Enabled || len(ops) == 0 {
		return catalog.Tool{}, false
	}

	allowed := ops
	if filter != nil {
		allowed = make([]catalog.Operation, 0, len(ops))
		for _, op := range ops {
			if filter(op) {
				allowed = append(allowed, op)
			}
		}
	}
	if len(allowed) == 0 {
		return catalog.Tool{}, false
	}

	ids := make([]string, 0, len(allowed))
	for _, op := range allowed {
		ids = append(ids, op.OperationID)
	}

	var opDescription string
	if len(allowed) == len(ops) {
		opDescription = "Operation to execute. Available operations:\n" + listOperations(ops)
	} else {
		opDescription = fmt.Sprintf("Operation to execute (%d available)", len(allowed))
	}

	name := g.Key
	if len(name) > catalog.MaxToolNameLength {
		name = name[:catalog.MaxToolNameLength]
	}

	return catalog.Tool{
		Name:        name,
		Description: g.Description,
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"operation": map[string]interface{}{
					"type":        "string",
					"enum":        ids,
					"description": opDescription,
				},
				"params": map[string]interface{}{
					"type":                 "object",
					"description":          "Operation-specific parameters. Check the operation's path for required path parameters.",
					"additionalProperties": true,
				},
			},
			"required": []string{"operation"},
		},
	}, true
}

func listOperations(ops []catalog.Operation) string {
	lines := make([]string, 0, maxListedOperations+1)
	for i, op := range ops {
		if i >= maxListedOperations {
			break
		}
		line := fmt.Sprintf("- %s: %s %s", op.OperationID, op.Method, op.Path)
		if op.Summary != "" {
			line += " (" + op.Summary + ")"
		}
		lines = append(lines, line)
	}
	if len(ops) > maxListedOperations {
		lines = append(lines, fmt.Sprintf("... and %d more", len(ops)-maxListedOperations))
	}
	return strings.Join(lines, "\n")
}
