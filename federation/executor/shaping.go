package executor

import (
	"encoding/json"
	"fmt"

	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
	"github.com/n9te9/graphql-parser/ast"
)

// Shape is a pre-computed description of an expected response field: its
// coercion kind and whether a null here may propagate to a nullable
// ancestor or must keep climbing.
type Shape struct {
	ResponseKey string
	Kind        ShapeKind
	Nullable    bool
	Of          *Shape          // element shape, for ShapeList
	Fields      map[string]*Shape // for ShapeObject
}

type ShapeKind int

const (
	ShapeScalarInt ShapeKind = iota
	ShapeScalarFloat
	ShapeScalarString
	ShapeScalarBoolean
	ShapeList
	ShapeObject
	ShapeAny
)

// CoerceError is returned when a subgraph value fails to match its shape;
// the caller turns it into a SUBGRAPH_INVALID_RESPONSE_ERROR and
// null-propagates.
type CoerceError struct {
	Path []any
}

func (e *CoerceError) Error() string { return fmt.Sprintf("invalid response at path %v", e.Path) }

// Coerce validates and converts a raw decoded JSON value against shape,
// returning the coerced value and recording one *CoerceError per path that
// failed to coerce into errs, even when a nullable ancestor recovers from
// it by nulling that field instead of propagating the failure further up.
// A non-nil returned error means the failure reached shape itself without
// finding a nullable field to null along the way, and the caller must
// null-propagate past shape's own boundary (see NullPropagate).
func Coerce(shape *Shape, value any, path []any, errs *[]*CoerceError) (any, error) {
	if value == nil {
		if !shape.Nullable && shape.Kind != ShapeAny {
			err := &CoerceError{Path: append([]any{}, path...)}
			*errs = append(*errs, err)
			return nil, err
		}
		return nil, nil
	}

	switch shape.Kind {
	case ShapeScalarInt:
		switch v := value.(type) {
		case json.Number:
			i, err := v.Int64()
			if err != nil || i > (1<<31-1) || i < -(1<<31) {
				return coerceFail(path, errs)
			}
			return i, nil
		case float64:
			return int64(v), nil
		default:
			return coerceFail(path, errs)
		}
	case ShapeScalarFloat:
		switch v := value.(type) {
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return coerceFail(path, errs)
			}
			return f, nil
		case float64:
			return v, nil
		default:
			return coerceFail(path, errs)
		}
	case ShapeScalarString:
		s, ok := value.(string)
		if !ok {
			return coerceFail(path, errs)
		}
		return s, nil
	case ShapeScalarBoolean:
		b, ok := value.(bool)
		if !ok {
			return coerceFail(path, errs)
		}
		return b, nil
	case ShapeList:
		list, ok := value.([]any)
		if !ok {
			return coerceFail(path, errs)
		}
		out := make([]any, len(list))
		for i, item := range list {
			itemPath := append(append([]any{}, path...), i)
			v, err := Coerce(shape.Of, item, itemPath, errs)
			if err != nil {
				if shape.Of.Nullable {
					out[i] = nil
					continue
				}
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case ShapeObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return coerceFail(path, errs)
		}
		out := make(map[string]any, len(obj))
		for key, fieldShape := range shape.Fields {
			fieldPath := append(append([]any{}, path...), key)
			v, err := Coerce(fieldShape, obj[key], fieldPath, errs)
			if err != nil {
				if fieldShape.Nullable {
					out[key] = nil
					continue
				}
				return nil, err
			}
			out[key] = v
		}
		// Keys the shape doesn't know about (e.g. a representation's key
		// fields echoed back that weren't explicitly selected) pass through
		// unvalidated rather than being silently dropped.
		for key, v := range obj {
			if _, known := shape.Fields[key]; !known {
				out[key] = v
			}
		}
		return out, nil
	default:
		return value, nil
	}
}

func coerceFail(path []any, errs *[]*CoerceError) (any, error) {
	err := &CoerceError{Path: append([]any{}, path...)}
	*errs = append(*errs, err)
	return nil, err
}

// NullPropagate walks ancestorShapes (innermost first, i.e. the chain from
// the failed field back up to the root) and returns the index of the first
// nullable ancestor; everything from the failure up to and including that
// index becomes null. If no ancestor is nullable, the whole response's
// "data" becomes null.
func NullPropagate(ancestorShapes []*Shape) (nullUpTo int, wholeResponseNull bool) {
	for i, shape := range ancestorShapes {
		if shape.Nullable {
			return i, false
		}
	}
	return len(ancestorShapes) - 1, true
}

// buildResponseShape computes the expected response Shape for one plan's
// top-level selection set, rooted at parentType. Selections other than
// *ast.Field (inline fragments on an interface/union) are left out of
// Fields and so fall back to the object's "unknown key" passthrough in
// Coerce: this package already treats abstract-type selections
// permissively elsewhere (boundary expansion and the query builder both
// key off concrete *ast.Field selections too).
func buildResponseShape(sch *schema.Schema, parentType string, sels []ast.Selection) *Shape {
	fields := map[string]*Shape{"__typename": {Kind: ShapeAny, Nullable: true}}
	for _, sel := range sels {
		f, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		fields[responseKey(f)] = buildFieldShape(sch, parentType, f)
	}
	return &Shape{Kind: ShapeObject, Nullable: true, Fields: fields}
}

func responseKey(f *ast.Field) string {
	if f.Alias != nil && f.Alias.String() != "" {
		return f.Alias.String()
	}
	return f.Name.String()
}

// buildFieldShape resolves one selected field's Shape from the schema,
// wrapping a leaf scalar/object shape in ShapeList Type.Depth times for the
// field's list nesting. TypeRecord only preserves the outermost wrapper's
// nullability (unwrapASTType discards every inner non-null marker while
// parsing), so every list level but the outermost, and the list elements
// themselves, default to nullable, which under-rejects a malformed response rather than over-rejecting a
// valid one.
func buildFieldShape(sch *schema.Schema, parentType string, f *ast.Field) *Shape {
	fid, ok := sch.FieldDefinitionByName(parentType, f.Name.String())
	if !ok {
		return &Shape{Kind: ShapeAny, Nullable: true}
	}
	fd := sch.Field(fid)
	typeName := sch.FieldReturnTypeName(parentType, f.Name.String())
	shape := leafShape(sch, typeName, f)
	if fd.Type.Depth == 0 {
		shape.Nullable = fd.Type.Nullable
		return shape
	}
	shape.Nullable = true
	for i := uint8(0); i < fd.Type.Depth; i++ {
		nullable := true
		if i == fd.Type.Depth-1 {
			nullable = fd.Type.Nullable
		}
		shape = &Shape{Kind: ShapeList, Nullable: nullable, Of: shape}
	}
	return shape
}

func leafShape(sch *schema.Schema, typeName string, f *ast.Field) *Shape {
	switch typeName {
	case "Int":
		return &Shape{Kind: ShapeScalarInt}
	case "Float":
		return &Shape{Kind: ShapeScalarFloat}
	case "String", "ID":
		return &Shape{Kind: ShapeScalarString}
	case "Boolean":
		return &Shape{Kind: ShapeScalarBoolean}
	}
	if len(f.SelectionSet) > 0 {
		if def, ok := sch.DefinitionByName(typeName); ok && def.Kind == schema.DefinitionKindObject {
			return buildResponseShape(sch, typeName, f.SelectionSet)
		}
	}
	// Custom scalars, enums, and interfaces/unions (whose concrete fields
	// live behind inline fragments this package doesn't shape) pass
	// through unvalidated.
	return &Shape{Kind: ShapeAny, Nullable: true}
}

// walkShapePath descends shape.Fields along path (field-name segments, as
// stored on Plan.Path/InsertionPath), transparently unwrapping any
// ShapeList encountered first since a list field's elements share its
// Fields, and returns the field Shape found at each step in root-to-leaf
// order.
func walkShapePath(root *Shape, path []string) []*Shape {
	var chain []*Shape
	cur := root
	for _, seg := range path {
		if cur == nil {
			break
		}
		for cur.Kind == ShapeList {
			cur = cur.Of
		}
		if cur == nil || cur.Fields == nil {
			break
		}
		next, ok := cur.Fields[seg]
		if !ok {
			break
		}
		chain = append(chain, next)
		cur = next
	}
	return chain
}
