package pipespec

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Variables lifts grouped Go values into the variable map Build evaluates
// option expressions against. Each group becomes one object, so an entry
// under "experiment" is referenced as experiment.<name> in option
// expressions.
func Variables(groups map[string]map[string]any) (map[string]cty.Value, error) {
	vars := make(map[string]cty.Value, len(groups))
	for group, values := range groups {
		fields := make(map[string]cty.Value, len(values))
		for name, v := range values {
			val, err := goToCty(v)
			if err != nil {
				return nil, fmt.Errorf("variable %s.%s: %w", group, name, err)
			}
			fields[name] = val
		}
		vars[group] = cty.ObjectVal(fields)
	}
	return vars, nil
}

// goToCty lifts a plain Go value into its implied cty type.
func goToCty(v any) (cty.Value, error) {
	ty, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.NilVal, err
	}
	return gocty.ToCtyValue(v, ty)
}

// ctyToGo lowers an evaluated cty value into plain Go values: objects and
// maps become map[string]any, sequences become []any, numbers become
// float64.
func ctyToGo(val cty.Value) (any, error) {
	if val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Number:
		f, _ := val.AsBigFloat().Float64()
		return f, nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty.IsObjectType() || ty.IsMapType():
		elems := val.AsValueMap()
		out := make(map[string]any, len(elems))
		for name, elem := range elems {
			goVal, err := ctyToGo(elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			out[name] = goVal
		}
		return out, nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		elems := val.AsValueSlice()
		out := make([]any, len(elems))
		for i, elem := range elems {
			goVal, err := ctyToGo(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = goVal
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value of type %s", ty.FriendlyName())
}
