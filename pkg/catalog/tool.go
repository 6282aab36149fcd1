package catalog

import "fmt"

// Tool is a callable advertised to tool-calling clients
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// RawTool describes a single operation as its own tool
func RawTool(op Operation) Tool {
	description := fmt.Sprintf("%s %s", op.Method, op.Path)
	if op.Summary != "" {
		description += " - " + op.Summary
	}

	properties := make(map[string]interface{})
	required := []string{}

	for _, name := range op.PathPlaceholders() {
		properties[name] = map[string]interface{}{
			"type":        "string",
			"description": "Path parameter: " + name,
		}
		required = append(required, name)
	}

	for _, p := range op.QueryParameters() {
		desc := p.Description
		if desc == "" {
			desc = "Query parameter: " + p.Name
		}
		properties[p.Name] = map[string]interface{}{
			"type":        p.Type,
			"description": desc,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}

	if op.HasRequestBody {
		properties["body"] = map[string]interface{}{
			"type":        "object",
			"description": "Request body data",
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	return Tool{
		Name:        op.ToolName(),
		Description: description,
		InputSchema: schema,
	}
}
