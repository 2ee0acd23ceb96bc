package jsontemplate

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Resolve replaces all `{ "$param": "param_name" }` references in the JSON with
// values from params and returns new JSON data. Param values are always
// provided as strings and then converted to specific JSON types according to
// the field of target (a struct or pointer to struct) that the JSON decodes
// into.
func Resolve(data []byte, target any, params *Params) ([]byte, error) {
	var jsonObj any
	if err := json.Unmarshal(data, &jsonObj); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	processedObj, err := processNode(jsonObj, params, reflect.TypeOf(target), "")
	if err != nil {
		return nil, fmt.Errorf("parameter resolution failed: %w", err)
	}

	return json.Marshal(processedObj)
}

// processNode traverses the JSON structure, replacing parameter references
func processNode(node any, params *Params, typ reflect.Type, path string) (any, error) {
	switch nodeValue := node.(type) {

	// JSON object
	case map[string]any:
		// Check if this is a $param reference node
		if paramName, isParam := nodeValue["$param"]; isParam && len(nodeValue) == 1 {
			paramNameStr, isNameString := paramName.(string)
			if !isNameString {
				return nil, fmt.Errorf("param name must be a string")
			}

			paramValue, exists := params.Get(paramNameStr)
			if !exists {
				return nil, fmt.Errorf("missing parameter %q", paramNameStr)
			}

			fieldType, err := fieldTypeAt(typ, path)
			if err != nil {
				return nil, err
			}
			if k := fieldType.Kind(); k == reflect.Slice || k == reflect.Array {
				return nil, fmt.Errorf("cannot use $param for array field %q", path)
			}

			return toJSONType(paramValue, fieldType.Kind())
		}

		// Regular object (no $param), process each field
		result := make(map[string]any)
		for k, v := range nodeValue {
			childPath := path
			if path == "" {
				childPath = k
			} else {
				childPath = path + "." + k
			}

			processed, err := processNode(v, params, typ, childPath)
			if err != nil {
				return nil, err
			}
			result[k] = processed
		}
		return result, nil

	// JSON array, process each item
	case []any:
		result := make([]any, len(nodeValue))
		for i, item := range nodeValue {
			processed, err := processNode(item, params, typ, path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			result[i] = processed
		}
		return result, nil

	// Primitive value, done
	default:
		return nodeValue, nil
	}
}

// fieldTypeAt walks a dotted JSON path through struct fields, matching names
// the way encoding/json does.
func fieldTypeAt(typ reflect.Type, path string) (reflect.Type, error) {
	if path == "" {
		return nil, fmt.Errorf("BUG: empty path for type resolution")
	}

	current := typ
	for _, name := range strings.Split(path, ".") {
		indexed := false
		if idx := strings.Index(name, "["); idx >= 0 {
			name, indexed = name[:idx], true
		}

		for current.Kind() == reflect.Pointer {
			current = current.Elem()
		}
		if current.Kind() != reflect.Struct {
			return nil, fmt.Errorf("cannot traverse non-object field %s in path %s", name, path)
		}

		field, ok := fieldByJSONName(current, name)
		if !ok {
			return nil, fmt.Errorf("field %s not found in path %s", name, path)
		}
		current = field.Type
		if indexed {
			current = current.Elem()
		}
	}
	for current.Kind() == reflect.Pointer {
		current = current.Elem()
	}
	return current, nil
}

func fieldByJSONName(typ reflect.Type, name string) (reflect.StructField, bool) {
	var folded *reflect.StructField
	for i := range typ.NumField() {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		tagName, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if tagName == "-" {
			continue
		}
		if tagName == "" {
			tagName = f.Name
		}
		if tagName == name {
			return f, true
		}
		if folded == nil && strings.EqualFold(tagName, name) {
			folded = &f
		}
	}
	if folded != nil {
		return *folded, true
	}
	return reflect.StructField{}, false
}

// toJSONType converts a string value to the JSON type of a Go kind
func toJSONType(value string, kind reflect.Kind) (any, error) {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.ParseInt(value, 10, 64)
	case reflect.Float32, reflect.Float64:
		return strconv.ParseFloat(value, 64)
	case reflect.Bool:
		return strconv.ParseBool(value)
	case reflect.String:
		return value, nil
	default:
		return nil, fmt.Errorf("unsupported field type: %v", kind)
	}
}
