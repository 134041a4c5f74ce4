package executor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/n9te9/go-graphql-federation-gateway/federation/planner"
	"github.com/n9te9/graphql-parser/ast"
)

// QueryBuilder renders a Plan into the query text sent to a subgraph.
// operationType is derived from the plan itself rather than taken as a
// separate argument, so root and entity queries share one entrypoint.
type QueryBuilder struct{}

func NewQueryBuilder() *QueryBuilder { return &QueryBuilder{} }

func (qb *QueryBuilder) Build(plan *planner.Plan, representations []map[string]any, variables map[string]any) (string, map[string]any, error) {
	if plan.StepType == planner.StepTypeQuery {
		return qb.buildRootQuery(plan, variables)
	}
	return qb.buildEntityQuery(plan, representations, variables)
}

func (qb *QueryBuilder) buildRootQuery(plan *planner.Plan, variables map[string]any) (string, map[string]any, error) {
	var sb strings.Builder

	varNames := qb.collectVariables(plan.SelectionSet)
	operationType := plan.OperationType
	if operationType == "" {
		operationType = "query"
	}

	sb.WriteString(operationType)
	if len(varNames) > 0 {
		sb.WriteString(" (")
		for i, name := range varNames {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("$")
			sb.WriteString(name)
			sb.WriteString(": ")
			sb.WriteString(qb.inferVariableType(name, variables))
		}
		sb.WriteString(")")
	}
	sb.WriteString(" {\n")
	for _, sel := range plan.SelectionSet {
		if err := qb.writeSelection(&sb, sel, "\t"); err != nil {
			return "", nil, err
		}
	}
	sb.WriteString("}")
	return sb.String(), variables, nil
}

func (qb *QueryBuilder) buildEntityQuery(plan *planner.Plan, representations []map[string]any, variables map[string]any) (string, map[string]any, error) {
	if len(representations) == 0 {
		return "", nil, fmt.Errorf("representations cannot be empty for entity query")
	}

	var sb strings.Builder
	sb.WriteString("query ($representations: [_Any!]!) {\n")
	sb.WriteString("\t_entities(representations: $representations) {\n")
	sb.WriteString("\t\t... on ")
	sb.WriteString(plan.ParentType)
	sb.WriteString(" {\n")
	for _, sel := range plan.SelectionSet {
		if err := qb.writeSelection(&sb, sel, "\t\t\t"); err != nil {
			return "", nil, err
		}
	}
	sb.WriteString("\t\t}\n\t}\n}")

	newVariables := make(map[string]any, len(variables)+1)
	for k, v := range variables {
		newVariables[k] = v
	}
	newVariables["representations"] = representations
	return sb.String(), newVariables, nil
}

// RenderSelection renders sels the same way Build does, without the
// surrounding operation/entities wrapper, so it can double as a cache key's
// selection component (two requests asking for the same fields in the same
// shape hash identically regardless of which plan produced them).
func (qb *QueryBuilder) RenderSelection(sels []ast.Selection) (string, error) {
	var sb strings.Builder
	for _, sel := range sels {
		if err := qb.writeSelection(&sb, sel, ""); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

func (qb *QueryBuilder) collectVariables(sels []ast.Selection) []string {
	vars := map[string]bool{}
	qb.collectVariablesRecursive(sels, vars)
	out := make([]string, 0, len(vars))
	for v := range vars {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (qb *QueryBuilder) collectVariablesRecursive(sels []ast.Selection, vars map[string]bool) {
	for _, sel := range sels {
		switch s := sel.(type) {
		case *ast.Field:
			for _, arg := range s.Arguments {
				qb.collectVariablesFromValue(arg.Value, vars)
			}
			if len(s.SelectionSet) > 0 {
				qb.collectVariablesRecursive(s.SelectionSet, vars)
			}
		case *ast.InlineFragment:
			if len(s.SelectionSet) > 0 {
				qb.collectVariablesRecursive(s.SelectionSet, vars)
			}
		}
	}
}

func (qb *QueryBuilder) collectVariablesFromValue(v ast.Value, vars map[string]bool) {
	switch val := v.(type) {
	case *ast.Variable:
		vars[val.Name] = true
	case *ast.ListValue:
		for _, item := range val.Values {
			qb.collectVariablesFromValue(item, vars)
		}
	case *ast.ObjectValue:
		for _, field := range val.Fields {
			qb.collectVariablesFromValue(field.Value, vars)
		}
	}
}

func (qb *QueryBuilder) inferVariableType(name string, variables map[string]any) string {
	switch variables[name].(type) {
	case string:
		return "String"
	case int, int32, int64, float64:
		return "Int"
	case bool:
		return "Boolean"
	}
	return "String"
}

func (qb *QueryBuilder) writeSelection(sb *strings.Builder, sel ast.Selection, indent string) error {
	switch s := sel.(type) {
	case *ast.Field:
		sb.WriteString(indent)
		if s.Alias != nil && s.Alias.String() != "" {
			sb.WriteString(s.Alias.String())
			sb.WriteString(": ")
		}
		sb.WriteString(s.Name.String())
		if len(s.Arguments) > 0 {
			sb.WriteString("(")
			for i, arg := range s.Arguments {
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(arg.Name.String())
				sb.WriteString(": ")
				qb.writeValue(sb, arg.Value)
			}
			sb.WriteString(")")
		}
		if len(s.SelectionSet) > 0 {
			sb.WriteString(" {\n")
			for _, sub := range s.SelectionSet {
				if err := qb.writeSelection(sb, sub, indent+"\t"); err != nil {
					return err
				}
			}
			sb.WriteString(indent)
			sb.WriteString("}")
		}
		sb.WriteString("\n")
	case *ast.InlineFragment:
		sb.WriteString(indent)
		sb.WriteString("... on ")
		sb.WriteString(s.TypeCondition.Name.String())
		sb.WriteString(" {\n")
		for _, sub := range s.SelectionSet {
			if err := qb.writeSelection(sb, sub, indent+"\t"); err != nil {
				return err
			}
		}
		sb.WriteString(indent)
		sb.WriteString("}\n")
	case *ast.FragmentSpread:
		sb.WriteString(indent)
		sb.WriteString("...")
		sb.WriteString(s.Name.String())
		sb.WriteString("\n")
	}
	return nil
}

func (qb *QueryBuilder) writeValue(sb *strings.Builder, v ast.Value) {
	switch val := v.(type) {
	case *ast.StringValue:
		sb.WriteString("\"")
		sb.WriteString(val.Value)
		sb.WriteString("\"")
	case *ast.IntValue:
		fmt.Fprintf(sb, "%d", val.Value)
	case *ast.FloatValue:
		fmt.Fprintf(sb, "%f", val.Value)
	case *ast.BooleanValue:
		fmt.Fprintf(sb, "%t", val.Value)
	case *ast.Variable:
		sb.WriteString("$")
		sb.WriteString(val.Name)
	case *ast.ListValue:
		sb.WriteString("[")
		for i, item := range val.Values {
			if i > 0 {
				sb.WriteString(", ")
			}
			qb.writeValue(sb, item)
		}
		sb.WriteString("]")
	case *ast.ObjectValue:
		sb.WriteString("{")
		for i, field := range val.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(field.Name.String())
			sb.WriteString(": ")
			qb.writeValue(sb, field.Value)
		}
		sb.WriteString("}")
	case *ast.EnumValue:
		sb.WriteString(val.Value)
	default:
		sb.WriteString("null")
	}
}
