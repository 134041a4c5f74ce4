// Package csrf implements the non-GET CSRF mitigation GraphQL servers
// conventionally apply: a simple request must carry at least one header a
// browser cannot set on a cross-origin form submission. Requests missing
// every such header are rejected before they reach the operation pipeline.
package csrf

import "net/http"

var requiredHeaders = []string{
	"X-Requested-With",
	"Apollo-Require-Preflight",
	"Content-Type",
}

// Check reports whether r satisfies the CSRF mitigation: requests that
// aren't simple form submissions always carry one of requiredHeaders, since
// a browser sending a simple request cross-origin cannot set custom headers
// or a non-form Content-Type.
func Check(r *http.Request) bool {
	if r.Method == http.MethodGet {
		return true
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && ct != "application/x-www-form-urlencoded" &&
		ct != "multipart/form-data" && ct != "text/plain" {
		return true
	}
	for _, h := range requiredHeaders[:2] {
		if r.Header.Get(h) != "" {
			return true
		}
	}
	return false
}
