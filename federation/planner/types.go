// Package planner lowers a bound operation into one operation plan: a DAG
// of Plans (subgraph fetches) and ResponseModifiers (post-fetch
// authorization checks), each carrying the selection set and dependency
// edges the execution driver needs. The Steiner solver is consulted only to
// choose among several subgraphs that own an entity type.
package planner

import (
	"github.com/n9te9/graphql-parser/ast"

	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
)

type ExecutableID uint32

// ExecutableKind discriminates Plan from ResponseModifier within one
// parent-count DAG.
type ExecutableKind uint8

const (
	ExecutablePlan ExecutableKind = iota
	ExecutableResponseModifier
)

// Executable is the common interface Plan and ResponseModifier both satisfy
// so the execution driver can track one parent_count/children_ids DAG
// uniformly across fetches and post-fetch modifiers.
type Executable interface {
	ExecutableID() ExecutableID
	Kind() ExecutableKind
	ParentCount() uint16
	ChildrenIDs() []ExecutableID
}

// Plan is one query partition lowered to an executable unit.
type Plan struct {
	ID               ExecutableID
	Subgraph         schema.SubgraphID
	SubgraphName     string
	StepType         StepType
	ParentType       string
	SelectionSet     []ast.Selection
	Path             []string
	InsertionPath    []string
	DependsOn        []ExecutableID
	parentCount      uint16
	childrenIDs      []ExecutableID
	OperationType    string
}

func (p *Plan) ExecutableID() ExecutableID    { return p.ID }
func (p *Plan) Kind() ExecutableKind          { return ExecutablePlan }
func (p *Plan) ParentCount() uint16           { return p.parentCount }
func (p *Plan) ChildrenIDs() []ExecutableID   { return p.childrenIDs }

type StepType int

const (
	StepTypeQuery StepType = iota
	StepTypeEntity
)

// AuthRule classifies why a response modifier exists to strip a field.
type AuthRule int

const (
	RuleAuthorizedParentEdge AuthRule = iota
	RuleAuthorizedEdgeChild
)

// ResponseModifier is a post-fetch authorization hook.
type ResponseModifier struct {
	ID          ExecutableID
	Rule        AuthRule
	Targets     []string // dotted field-shape paths this modifier inspects
	DependsOn   []ExecutableID
	parentCount uint16
	childrenIDs []ExecutableID
}

func (m *ResponseModifier) ExecutableID() ExecutableID  { return m.ID }
func (m *ResponseModifier) Kind() ExecutableKind        { return ExecutableResponseModifier }
func (m *ResponseModifier) ParentCount() uint16         { return m.parentCount }
func (m *ResponseModifier) ChildrenIDs() []ExecutableID { return m.childrenIDs }

// Plan (operation-level) is the full lowered DAG for one request.
type OperationPlan struct {
	Executables     []Executable
	RootExecutables []ExecutableID
	OriginalDocument *ast.Document
	OperationType   string
}

func (p *OperationPlan) GetByID(id ExecutableID) Executable {
	return p.Executables[id]
}
