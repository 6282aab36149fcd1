package dispatch

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/platinummonkey/nexus-mcp/pkg/apierr"
	"github.com/platinummonkey/nexus-mcp/pkg/catalog"
)

// BodyArgument is the argument name carried as the JSON request payload
const BodyArgument = "body"

// Prepared is an operation call with its path substituted
type Prepared struct {
	Method string
	// Path is the substituted operation path, without namespace base
	Path  string
	Query url.Values
	Body  interface{}
}

// Prepare substitutes path placeholders and splits the remaining arguments
// into query parameters and body. Every placeholder must be present.
func Prepare(op catalog.Operation, args map[string]interface{}) (*Prepared, error) {
	placeholders := op.PathPlaceholders()

	var missing []string
	for _, name := range placeholders {
		if v, ok := args[name]; !ok || v == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, apierr.Dispatch(apierr.CodeMissingPathParameter,
			fmt.Sprintf("Missing required path parameter: %s", strings.Join(missing, ", "))).
			WithDetail("required_parameters", placeholders).
			WithDetail("missing_parameters", missing)
	}

	path := op.Path
	consumed := make(map[string]bool, len(placeholders))
	for _, name := range placeholders {
		value := formatScalar(args[name])
		// PathEscape leaves dot segments intact
		if value == "." || value == ".." {
			return nil, apierr.Dispatch(apierr.CodeInvalidArguments,
				fmt.Sprintf("Invalid path parameter %s: dot segments are not allowed", name)).
				WithDetail("parameter", name)
		}
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(value))
		consumed[name] = true
	}

	p := &Prepared{
		Method: strings.ToUpper(op.Method),
		Path:   path,
		Query:  url.Values{},
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if consumed[k] {
			continue
		}
		v := args[k]
		if k == BodyArgument {
			p.Body = v
			continue
		}
		addQuery(p.Query, k, v)
	}

	return p, nil
}

func addQuery(q url.Values, key string, v interface{}) {
	switch val := v.(type) {
	case nil:
	case []interface{}:
		for _, item := range val {
			if item != nil {
				q.Add(key, formatScalar(item))
			}
		}
	case []string:
		for _, item := range val {
			q.Add(key, item)
		}
	default:
		q.Add(key, formatScalar(val))
	}
}

// formatScalar renders an argument value for a URL
func formatScalar(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		if val == math.Trunc(val) && !math.IsInf(val, 0) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return formatScalar(float64(val))
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}
