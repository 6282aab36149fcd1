package catalog

import (
	"regexp"
	"strings"
)

// Supported HTTP methods, in emission order
var Methods = []string{"get", "post", "put", "delete", "patch"}

// MaxToolNameLength is the longest tool name clients accept
const MaxToolNameLength = 64

// Parameter is a declared path or query parameter
type Parameter struct {
	Name        string `json:"name"`
	In          string `json:"in"`
	Required    bool   `json:"required"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Operation is one REST endpoint from a namespace document
type Operation struct {
	Namespace      string      `json:"namespace"`
	OperationID    string      `json:"operation_id"`
	Method         string      `json:"method"`
	Path           string      `json:"path"`
	Summary        string      `json:"summary,omitempty"`
	Description    string      `json:"description,omitempty"`
	Tags           []string    `json:"tags,omitempty"`
	Parameters     []Parameter `json:"parameters,omitempty"`
	HasRequestBody bool        `json:"has_request_body"`
}

// Name returns the namespaced operation name used by role grants, e.g. manage_createVlan
func (o Operation) Name() string {
	return o.Namespace + "_" + o.OperationID
}

// ToolName returns the raw tool name, truncated to MaxToolNameLength
func (o Operation) ToolName() string {
	name := o.Name()
	if len(name) > MaxToolNameLength {
		name = o.OperationID
		if len(name) > MaxToolNameLength {
			name = name[:MaxToolNameLength]
		}
	}
	return name
}

// PathPlaceholders returns the {name} placeholders of the operation path
func (o Operation) PathPlaceholders() []string {
	return PathPlaceholders(o.Path)
}

// QueryParameters returns the declared query parameters
func (o Operation) QueryParameters() []Parameter {
	var out []Parameter
	for _, p := range o.Parameters {
		if p.In == "query" {
			out = append(out, p)
		}
	}
	return out
}

var placeholderPattern = regexp.MustCompile(`\{([^}]+)\}`)

// PathPlaceholders extracts {name} placeholders from a path template in order
func PathPlaceholders(path string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(path, -1)
	names := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

var nonIdentChars = regexp.MustCompile(`[^A-Za-z0-9]+`)

// SynthesizeOperationID derives a deterministic id for operations lacking one
func SynthesizeOperationID(method, path string) string {
	cleaned := strings.Trim(nonIdentChars.ReplaceAllString(path, "_"), "_")
	if cleaned == "" {
		return strings.ToLower(method)
	}
	return strings.ToLower(method) + "_" + cleaned
}

// Namespace describes one upstream API document
type Namespace struct {
	Name        string `yaml:"name" json:"name"`
	DisplayName string `yaml:"display_name" json:"display_name"`
	SpecFile    string `yaml:"spec_file" json:"spec_file"`
	BasePath    string `yaml:"base_path" json:"base_path"`
	Description string `yaml:"description" json:"description"`
	Enabled     bool   `yaml:"enabled" json:"enabled"`
}

// ResolvePath prefixes the substituted path with the namespace base path
// unless the operation template is already absolute under /api/.
// Argument values never decide whether the base path applies.
func (n Namespace) ResolvePath(template, path string) string {
	if strings.HasPrefix(template, "/api/") || n.BasePath == "" {
		return path
	}
	return strings.TrimRight(n.BasePath, "/") + "/" + strings.TrimLeft(path, "/")
}

// DefaultNamespaces returns the built-in Nexus Dashboard namespaces
func DefaultNamespaces() []Namespace {
	return []Namespace{
		{
			Name:        "manage",
			DisplayName: "Nexus Dashboard Manage (Fabric Controller)",
			SpecFile:    "nexus_dashboard_manage.json",
			BasePath:    "/api/v1/manage",
			Description: "Fabric management, switches, networks, VRFs, policies, templates",
			Enabled:     true,
		},
		{
			Name:        "analyze",
			DisplayName: "Nexus Dashboard Insights (Network Analysis)",
			SpecFile:    "analyze.json",
			BasePath:    "/api/v1/analyze",
			Description: "Network insights, flow analytics, anomalies, compliance, advisories",
			Enabled:     true,
		},
		{
			Name:        "infra",
			DisplayName: "Nexus Dashboard Infrastructure",
			SpecFile:    "infra.json",
			BasePath:    "/api/v1/infra",
			Description: "Cluster management, nodes, services, system health, backups",
			Enabled:     true,
		},
		{
			Name:        "onemanage",
			DisplayName: "Nexus Dashboard OneManage (Multi-Site)",
			SpecFile:    "one_manage.json",
			BasePath:    "/api/v1/oneManage",
			Description: "Multi-site orchestration and management",
			Enabled:     true,
		},
	}
}
