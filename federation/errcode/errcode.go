// Package errcode defines the GraphQL error "extensions.code" values the
// gateway attaches to its own errors, distinct from whatever code a
// subgraph chooses for its own application errors.
package errcode

const (
	ParseError              = "GRAPHQL_PARSE_FAILED"
	ValidationError         = "OPERATION_VALIDATION_ERROR"
	VariableCoercionError   = "VARIABLE_COERCION_FAILURE"
	PersistedQueryNotFound  = "PERSISTED_QUERY_NOT_FOUND"
	OperationNotPermitted   = "OPERATION_NOT_PERMITTED"
	IntrospectionDisabled   = "INTROSPECTION_DISABLED"
	InaccessibleField       = "INACCESSIBLE_FIELD"
	SubgraphRequestError    = "SUBGRAPH_REQUEST_ERROR"
	SubgraphInvalidResponse = "SUBGRAPH_INVALID_RESPONSE_ERROR"
	Unauthenticated         = "UNAUTHENTICATED"
	Unauthorized            = "UNAUTHORIZED"
	RateLimited             = "GATEWAY_RATE_LIMITED"
	RequirementCycle        = "REQUIREMENT_CYCLE_DETECTED"
	NoResolverFound         = "NO_RESOLVER_FOUND"
	Internal                = "INTERNAL_SERVER_ERROR"
)
