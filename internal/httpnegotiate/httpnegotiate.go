// Package httpnegotiate parses an Accept header's quality values to choose
// a response content type from the set a GraphQL-over-HTTP server offers:
// application/graphql-response+json, application/json, and (for subscriptions
// over plain HTTP) text/event-stream.
package httpnegotiate

import (
	"sort"
	"strconv"
	"strings"
)

const (
	GraphQLResponseJSON = "application/graphql-response+json"
	JSON                = "application/json"
	EventStream         = "text/event-stream"
	Multipart           = "multipart/mixed"
)

type candidate struct {
	mediaType string
	quality   float64
}

// Negotiate picks the media type of the highest-quality entry in accept
// that matches one of offered. Entries of equal quality are tried in the
// order they appear in accept; a wildcard entry ("*/*" or "type/*") yields
// the first offered type it matches. An empty Accept header, or one that
// matches nothing offered, yields offered[0].
func Negotiate(accept string, offered []string) string {
	if strings.TrimSpace(accept) == "" {
		return offered[0]
	}

	var candidates []candidate
	for _, part := range strings.Split(accept, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mt, q := parseOne(part)
		candidates = append(candidates, candidate{mediaType: mt, quality: q})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].quality > candidates[j].quality })

	for _, c := range candidates {
		for _, o := range offered {
			if c.mediaType == "*/*" || c.mediaType == o {
				return o
			}
			if strings.HasSuffix(c.mediaType, "/*") && strings.HasPrefix(o, strings.TrimSuffix(c.mediaType, "*")) {
				return o
			}
		}
	}
	return offered[0]
}

func parseOne(part string) (string, float64) {
	segments := strings.Split(part, ";")
	mediaType := strings.TrimSpace(segments[0])
	quality := 1.0
	for _, seg := range segments[1:] {
		seg = strings.TrimSpace(seg)
		if strings.HasPrefix(seg, "q=") {
			if q, err := strconv.ParseFloat(strings.TrimPrefix(seg, "q="), 64); err == nil {
				quality = q
			}
		}
	}
	return mediaType, quality
}
