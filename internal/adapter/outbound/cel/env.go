package cel

import (
	"path/filepath"
	"reflect"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/Sentinel-Gate/hrgate/internal/domain/directory"
	"github.com/Sentinel-Gate/hrgate/internal/domain/policy"
)

var nativeMapType = reflect.TypeOf(map[string]any{})

// NewPolicyEnvironment creates the CEL environment rule conditions are
// compiled against.
//
// Variables: tool_name, tool_args, read_only, caller_roles, identity_id,
// identity_name, transport, request_time.
//
// Functions:
//   - glob(pattern, name) matches tool names with filepath.Match syntax.
//   - arg(tool_args, key) returns a top-level argument or null.
//   - touches_field(tool_args, "MANAGER") reports whether the call writes or
//     asks for the named directory field.
func NewPolicyEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("tool_name", cel.StringType),
		cel.Variable("tool_args", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("read_only", cel.BoolType),
		cel.Variable("caller_roles", cel.ListType(cel.StringType)),
		cel.Variable("identity_id", cel.StringType),
		cel.Variable("identity_name", cel.StringType),
		cel.Variable("transport", cel.StringType),
		cel.Variable("request_time", cel.TimestampType),

		cel.Function("glob",
			cel.Overload("glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pattern, name ref.Val) ref.Val {
					p := pattern.Value().(string)
					n := name.Value().(string)
					matched, _ := filepath.Match(p, n)
					return types.Bool(matched)
				}),
			),
		),

		cel.Function("arg",
			cel.Overload("arg_map_string",
				[]*cel.Type{cel.MapType(cel.StringType, cel.DynType), cel.StringType},
				cel.DynType,
				cel.BinaryBinding(func(mapVal, keyVal ref.Val) ref.Val {
					args := nativeMap(mapVal)
					v, found := args[keyVal.Value().(string)]
					if !found {
						return types.NullValue
					}
					return types.DefaultTypeAdapter.NativeToValue(v)
				}),
			),
		),

		cel.Function("touches_field",
			cel.Overload("touches_field_map_string",
				[]*cel.Type{cel.MapType(cel.StringType, cel.DynType), cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(mapVal, fieldVal ref.Val) ref.Val {
					return types.Bool(TouchesField(nativeMap(mapVal), fieldVal.Value().(string)))
				}),
			),
		),
	)
}

// nativeMap converts a CEL map value into a Go map, or nil.
func nativeMap(v ref.Val) map[string]any {
	if m, ok := v.Value().(map[string]any); ok {
		return m
	}
	native, err := v.ConvertToNative(nativeMapType)
	if err != nil {
		return nil
	}
	m, _ := native.(map[string]any)
	return m
}

// TouchesField reports whether tool arguments mention the human field name,
// either as a key (in any nested object, by human or property name), as a
// <property>Id argument such as managerId, or inside a "fields" list.
func TouchesField(args map[string]any, name string) bool {
	f, ok := directory.LookupField(name)
	if !ok {
		return false
	}
	return touches(args, f)
}

func touches(v any, f directory.Field) bool {
	switch val := v.(type) {
	case map[string]any:
		for k, inner := range val {
			if f.Matches(k) || touches(inner, f) {
				return true
			}
		}
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok && f.Matches(s) {
				return true
			}
			if touches(item, f) {
				return true
			}
		}
	}
	return false
}

// BuildActivation creates the CEL activation for an evaluation context.
func BuildActivation(evalCtx policy.EvaluationContext) map[string]any {
	toolArgs := evalCtx.ToolArguments
	if toolArgs == nil {
		toolArgs = map[string]interface{}{}
	}
	roles := evalCtx.CallerRoles
	if roles == nil {
		roles = []string{}
	}

	return map[string]any{
		"tool_name":     evalCtx.ToolName,
		"tool_args":     toolArgs,
		"read_only":     evalCtx.ReadOnly,
		"caller_roles":  roles,
		"identity_id":   evalCtx.IdentityID,
		"identity_name": evalCtx.IdentityName,
		"transport":     evalCtx.Transport,
		"request_time":  evalCtx.RequestTime,
	}
}
