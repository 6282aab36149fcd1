package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/platinummonkey/nexus-mcp/pkg/apierr"
	"github.com/platinummonkey/nexus-mcp/pkg/observability"
)

var (
	ErrMissingInfo  = errors.New("missing info section")
	ErrMissingTitle = errors.New("missing info.title")
	ErrMissingPaths = errors.New("missing paths")
	ErrEmptyPaths   = errors.New("paths is empty")
)

// Builder parses namespace documents into operations
type Builder struct {
	logger *observability.Logger
}

// NewBuilder creates a new Builder
func NewBuilder(logger *observability.Logger) *Builder {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Builder{logger: logger}
}

// Build parses a JSON or YAML OpenAPI document and returns its operations.
// Any structural problem rejects the whole document with a CatalogError.
func (b *Builder) Build(ns Namespace, data []byte) ([]Operation, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, apierr.Catalog(ns.Name, fmt.Errorf("failed to parse document: %w", err))
	}

	if err := validateDocument(doc); err != nil {
		return nil, apierr.Catalog(ns.Name, err)
	}

	paths := doc.Paths.Map()
	keys := make([]string, 0, len(paths))
	for p := range paths {
		keys = append(keys, p)
	}
	sort.Strings(keys)

	var ops []Operation
	var explicit []bool
	for _, path := range keys {
		item := paths[path]
		if item == nil {
			continue
		}
		for _, method := range Methods {
			if raw := item.GetOperation(strings.ToUpper(method)); raw != nil {
				ops = append(ops, toOperation(ns.Name, method, path, item, raw))
				explicit = append(explicit, strings.TrimSpace(raw.OperationID) != "")
			}
		}
	}

	b.assignUniqueIDs(ns.Name, ops, explicit)
	return ops, nil
}

// assignUniqueIDs keeps operation ids unique within a namespace without
// dropping any endpoint. The first explicit use of an id keeps it; later
// duplicates and colliding synthesized ids get a _2, _3, ... suffix.
func (b *Builder) assignUniqueIDs(namespace string, ops []Operation, explicit []bool) {
	owner := make(map[string]int, len(ops))
	for i, op := range ops {
		if explicit[i] {
			if _, ok := owner[op.OperationID]; !ok {
				owner[op.OperationID] = i
			}
		}
	}

	taken := make(map[string]bool, len(ops))
	for id := range owner {
		taken[id] = true
	}

	for i := range ops {
		id := ops[i].OperationID
		if first, ok := owner[id]; ok && first == i {
			continue
		}
		if !taken[id] {
			taken[id] = true
			continue
		}
		unique := id
		for n := 2; taken[unique]; n++ {
			unique = fmt.Sprintf("%s_%d", id, n)
		}
		taken[unique] = true
		b.logger.WithFields(map[string]interface{}{
			"namespace":    namespace,
			"operation_id": id,
			"renamed_to":   unique,
			"method":       ops[i].Method,
			"path":         ops[i].Path,
		}).Warn("duplicate operationId renamed")
		ops[i].OperationID = unique
	}
}

func validateDocument(doc *openapi3.T) error {
	if doc.Info == nil {
		return ErrMissingInfo
	}
	if strings.TrimSpace(doc.Info.Title) == "" {
		return ErrMissingTitle
	}
	if doc.Paths == nil {
		return ErrMissingPaths
	}
	if doc.Paths.Len() == 0 {
		return ErrEmptyPaths
	}
	return nil
}

func toOperation(namespace, method, path string, item *openapi3.PathItem, raw *openapi3.Operation) Operation {
	opID := strings.TrimSpace(raw.OperationID)
	if opID == "" {
		opID = SynthesizeOperationID(method, path)
	}

	description := raw.Description
	if description == "" {
		description = raw.Summary
	}

	return Operation{
		Namespace:      namespace,
		OperationID:    opID,
		Method:         strings.ToUpper(method),
		Path:           path,
		Summary:        raw.Summary,
		Description:    description,
		Tags:           append([]string(nil), raw.Tags...),
		Parameters:     mergeParameters(item.Parameters, raw.Parameters),
		HasRequestBody: raw.RequestBody != nil,
	}
}

// mergeParameters combines path-level and operation-level parameters.
// Operation-level declarations override path-level ones with the same name
// and location. Header and cookie parameters are dropped.
func mergeParameters(shared, own openapi3.Parameters) []Parameter {
	var out []Parameter
	index := make(map[string]int)

	add := func(refs openapi3.Parameters) {
		for _, ref := range refs {
			if ref == nil || ref.Value == nil {
				continue
			}
			p := ref.Value
			if p.In != openapi3.ParameterInPath && p.In != openapi3.ParameterInQuery {
				continue
			}
			param := Parameter{
				Name:        p.Name,
				In:          p.In,
				Required:    p.Required || p.In == openapi3.ParameterInPath,
				Type:        schemaType(p.Schema),
				Description: p.Description,
			}
			key := p.In + ":" + p.Name
			if i, ok := index[key]; ok {
				out[i] = param
				continue
			}
			index[key] = len(out)
			out = append(out, param)
		}
	}

	add(shared)
	add(own)
	return out
}

func schemaType(ref *openapi3.SchemaRef) string {
	if ref == nil || ref.Value == nil || ref.Value.Type == nil {
		return "string"
	}
	types := ref.Value.Type.Slice()
	for _, t := range types {
		if t != "null" {
			return t
		}
	}
	return "string"
}
