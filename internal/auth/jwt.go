// Package auth implements the executor.AuthorizationExtension boundary
// against bearer JWTs, checking a field's @requires_scopes directive
// against the token's granted scopes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/n9te9/go-graphql-federation-gateway/federation/executor"
	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
)

// ScopesAuthorizer denies a query element whenever its target field carries
// a @requires_scopes directive the presented token's scopes don't satisfy.
// @requires_scopes is OR-of-ANDs: the token must hold every scope in at
// least one of the field's scope sets.
type ScopesAuthorizer struct {
	Schema  *schema.Schema
	KeyFunc jwt.Keyfunc
}

func NewScopesAuthorizer(sch *schema.Schema, keyFunc jwt.Keyfunc) *ScopesAuthorizer {
	return &ScopesAuthorizer{Schema: sch, KeyFunc: keyFunc}
}

func (a *ScopesAuthorizer) AuthorizeQuery(ctx context.Context, headers map[string][]string, token string, groups []executor.AuthElementGroup) (executor.AuthorizationDecisions, error) {
	granted, err := a.grantedScopes(token)
	if err != nil {
		return executor.AuthorizationDecisions{
			Kind:         executor.AuthDenyAll,
			DenyAllError: &executor.GraphqlError{Message: "unauthenticated: " + err.Error()},
		}, nil
	}

	elementToError := map[int]executor.GraphqlError{}
	for _, g := range groups {
		for i, el := range g.Elements {
			target, _ := el["target"].(string)
			if target == "" || a.satisfies(target, granted) {
				continue
			}
			elementToError[i] = executor.GraphqlError{
				Message:    fmt.Sprintf("not authorized for %q", target),
				Extensions: map[string]any{"code": "UNAUTHORIZED"},
			}
		}
	}

	if len(elementToError) == 0 {
		return executor.AuthorizationDecisions{Kind: executor.AuthAllowAll}, nil
	}
	return executor.AuthorizationDecisions{Kind: executor.AuthDenySome, ElementToError: elementToError}, nil
}

func (a *ScopesAuthorizer) satisfies(target string, granted map[string]bool) bool {
	parts := strings.SplitN(target, ".", 2)
	if len(parts) != 2 {
		return true
	}
	fid, ok := a.Schema.FieldDefinitionByName(parts[0], parts[1])
	if !ok {
		return true
	}
	required := a.Schema.Field(fid).RequiresScopes
	if len(required) == 0 {
		return true
	}
	for _, and := range required {
		allGranted := true
		for _, scope := range and {
			if !granted[scope] {
				allGranted = false
				break
			}
		}
		if allGranted {
			return true
		}
	}
	return false
}

func (a *ScopesAuthorizer) grantedScopes(token string) (map[string]bool, error) {
	token = strings.TrimPrefix(token, "Bearer ")
	token = strings.TrimPrefix(token, "bearer ")
	if token == "" {
		return nil, errors.New("missing bearer token")
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, a.KeyFunc); err != nil {
		return nil, err
	}

	granted := map[string]bool{}
	switch v := claims["scope"].(type) {
	case string:
		for _, s := range strings.Fields(v) {
			granted[s] = true
		}
	case []any:
		for _, s := range v {
			if str, ok := s.(string); ok {
				granted[str] = true
			}
		}
	}
	return granted, nil
}
