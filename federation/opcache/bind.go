package opcache

import (
	"fmt"

	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
	"github.com/n9te9/graphql-parser/ast"
)

// ErrIntrospectionDisabled is returned by Bind when settings.DisableIntrospection
// is set and the operation selects __schema or __type at the root.
var ErrIntrospectionDisabled = fmt.Errorf("introspection is disabled")

// Bind finds the operation named operationName in doc, rejects __schema and
// __type root selections when introspection is disabled, rejects selections
// of @inaccessible fields, and records the root type, the root selection set
// and the variables as given (plus, for a mutation, the source order of its
// top-level fields). It does not fill QueryPartitions or DataFields and does
// not normalize or coerce variables.
func Bind(doc *ast.Document, sch *schema.Schema, operationName string, variables map[string]any) (*BoundOperation, error) {
	op, err := findOperation(doc, operationName)
	if err != nil {
		return nil, err
	}

	rootTypeName := "Query"
	switch op.OperationType {
	case "mutation":
		rootTypeName = "Mutation"
	case "subscription":
		rootTypeName = "Subscription"
	}

	if sch.Settings.DisableIntrospection {
		if err := rejectIntrospection(op.SelectionSet); err != nil {
			return nil, err
		}
	}

	if err := validateAccessibility(sch, rootTypeName, op.SelectionSet); err != nil {
		return nil, err
	}

	bound := &BoundOperation{
		Document:         doc,
		OperationType:    op.OperationType,
		RootTypeName:     rootTypeName,
		RootSelectionSet: op.SelectionSet,
		Variables:        variables,
	}

	if op.OperationType == "mutation" {
		bound.MutationPartitionOrder = mutationOrder(op.SelectionSet)
	}

	return bound, nil
}

// InaccessibleFieldError is returned by Bind when an operation selects a
// field (or a type via an inline fragment) marked @inaccessible. Named
// fragment spreads aren't expanded here, so a selection reached only through
// a named fragment isn't checked; every other shape is.
type InaccessibleFieldError struct {
	TypeName  string
	FieldName string
}

func (e *InaccessibleFieldError) Error() string {
	return fmt.Sprintf("Cannot query field %q on type %q", e.FieldName, e.TypeName)
}

func validateAccessibility(sch *schema.Schema, typeName string, sels []ast.Selection) error {
	for _, sel := range sels {
		switch s := sel.(type) {
		case *ast.Field:
			name := s.Name.String()
			if name == "__typename" || name == "__schema" || name == "__type" {
				continue
			}
			fid, ok := sch.FieldDefinitionByName(typeName, name)
			if !ok {
				continue
			}
			if sch.FieldInaccessible(fid) {
				return &InaccessibleFieldError{TypeName: typeName, FieldName: name}
			}
			if len(s.SelectionSet) > 0 {
				childType := sch.FieldReturnTypeName(typeName, name)
				if def, ok := sch.DefinitionByName(childType); ok && sch.Inaccessible(def) {
					return &InaccessibleFieldError{TypeName: childType, FieldName: name}
				}
				if err := validateAccessibility(sch, childType, s.SelectionSet); err != nil {
					return err
				}
			}
		case *ast.InlineFragment:
			condType := typeName
			if name := s.TypeCondition.Name.String(); name != "" {
				condType = name
			}
			if err := validateAccessibility(sch, condType, s.SelectionSet); err != nil {
				return err
			}
		}
	}
	return nil
}

func rejectIntrospection(sels []ast.Selection) error {
	for _, sel := range sels {
		if f, ok := sel.(*ast.Field); ok {
			name := f.Name.String()
			if name == "__schema" || name == "__type" {
				return ErrIntrospectionDisabled
			}
		}
	}
	return nil
}

// mutationOrder returns one placeholder partition id per top-level mutation
// field, in source order, since top-level mutations must serialize. The
// real partition ids are assigned by the planner
// once partitions exist; Bind only fixes the *field* order here so the
// planner cannot accidentally reorder them while grouping by subgraph.
func mutationOrder(sels []ast.Selection) []QueryPartitionID {
	var order []QueryPartitionID
	for i := range sels {
		if _, ok := sels[i].(*ast.Field); ok {
			order = append(order, QueryPartitionID(i))
		}
	}
	return order
}

type operationDef struct {
	OperationType string
	SelectionSet  []ast.Selection
}

func findOperation(doc *ast.Document, name string) (*operationDef, error) {
	for _, def := range doc.Definitions {
		if od, ok := def.(*ast.OperationDefinition); ok {
			if name == "" || od.Name.String() == name {
				return &operationDef{OperationType: od.OperationType, SelectionSet: od.SelectionSet}, nil
			}
		}
	}
	return nil, fmt.Errorf("no operation named %q found", name)
}
