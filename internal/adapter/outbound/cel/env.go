package cel

import (
	"path/filepath"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"
)

// NewServiceEnvironment creates the CEL environment for service-call rules.
//
// Variables:
//   - domain, service: the service being called ("light", "turn_on")
//   - service_name: "domain.service"
//   - data, target: the call payload as sent by the agent
//   - entity_ids: target.entity_id normalized to a list
//
// Functions: glob(pattern, s), arg(map, key), arg_contains(map, substr).
func NewServiceEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("domain", cel.StringType),
		cel.Variable("service", cel.StringType),
		cel.Variable("service_name", cel.StringType),
		cel.Variable("data", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("target", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("entity_ids", cel.ListType(cel.StringType)),

		// glob: filepath-style match, e.g. glob("lock.*", service_name)
		cel.Function("glob",
			cel.Overload("glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pattern, name ref.Val) ref.Val {
					p, _ := pattern.Value().(string)
					n, _ := name.Value().(string)
					matched, _ := filepath.Match(p, n)
					return types.Bool(matched)
				}),
			),
		),

		// arg: value for key, or null. Usage: arg(data, "brightness")
		cel.Function("arg",
			cel.Overload("arg_map_string",
				[]*cel.Type{cel.MapType(cel.StringType, cel.DynType), cel.StringType},
				cel.DynType,
				cel.BinaryBinding(func(mapVal, keyVal ref.Val) ref.Val {
					key, _ := keyVal.Value().(string)
					switch m := mapVal.Value().(type) {
					case map[string]any:
						if v, ok := m[key]; ok {
							return types.DefaultTypeAdapter.NativeToValue(v)
						}
					case map[ref.Val]ref.Val:
						if v, ok := m[types.String(key)]; ok {
							return v
						}
					}
					return types.NullValue
				}),
			),
		),

		// arg_contains: any string value contains substr. Usage: arg_contains(data, "unlock")
		cel.Function("arg_contains",
			cel.Overload("arg_contains_map_string",
				[]*cel.Type{cel.MapType(cel.StringType, cel.DynType), cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(mapVal, substrVal ref.Val) ref.Val {
					substr, _ := substrVal.Value().(string)
					switch m := mapVal.Value().(type) {
					case map[string]any:
						for _, v := range m {
							if s, ok := v.(string); ok && strings.Contains(s, substr) {
								return types.Bool(true)
							}
						}
					case map[ref.Val]ref.Val:
						for _, v := range m {
							if s, ok := v.Value().(string); ok && strings.Contains(s, substr) {
								return types.Bool(true)
							}
						}
					}
					return types.Bool(false)
				}),
			),
		),
	)
}

// ServiceCall is the input to a rule.
type ServiceCall struct {
	Domain  string
	Service string
	Data    map[string]any
	Target  map[string]any
}

// activation builds the CEL variable map for call.
func activation(call ServiceCall) map[string]any {
	data := call.Data
	if data == nil {
		data = map[string]any{}
	}
	target := call.Target
	if target == nil {
		target = map[string]any{}
	}
	return map[string]any{
		"domain":       call.Domain,
		"service":      call.Service,
		"service_name": call.Domain + "." + call.Service,
		"data":         data,
		"target":       target,
		"entity_ids":   entityIDs(call),
	}
}

// entityIDs collects entity_id from target, then data, as a list.
func entityIDs(call ServiceCall) []string {
	ids := []string{}
	for _, m := range []map[string]any{call.Target, call.Data} {
		switch v := m["entity_id"].(type) {
		case string:
			for _, id := range strings.Split(v, ",") {
				if id = strings.TrimSpace(id); id != "" {
					ids = append(ids, id)
				}
			}
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					ids = append(ids, s)
				}
			}
		case []string:
			ids = append(ids, v...)
		}
	}
	return ids
}
