package cachecontrol

import (
	"net/http"
	"strings"
)

// CacheControl holds the directives of one or more Cache-Control header fields.
// Directive names are compared case-insensitively.
type CacheControl struct {
	directives map[string]string
}

func (c CacheControl) Get(directive string) (string, bool) {
	val, ok := c.directives[strings.ToLower(directive)]
	return val, ok
}

func (c CacheControl) HasDirective(directive string) bool {
	_, ok := c.Get(directive)
	return ok
}

// NoCache reports whether the sender refuses a stored response without revalidation.
func (c CacheControl) NoCache() bool {
	return c.HasDirective("no-cache") || c.HasDirective("no-store")
}

// FromHeader parses the Cache-Control fields of the given header.
func FromHeader(h http.Header) CacheControl {
	return ParseCacheControl(h.Values("Cache-Control"))
}

// ParseCacheControl takes Cache-Control headers as a slice of strings
// and returns an instance of `CacheControl`.
func ParseCacheControl(headers []string) CacheControl {
	m := make(map[string]string)
	// last defined directive wins
	for _, header := range headers {
		for _, directive := range strings.Split(header, ",") {
			directive = strings.TrimSpace(directive)
			if directive == "" {
				continue
			}
			name, arg, _ := strings.Cut(directive, "=")
			m[strings.ToLower(strings.TrimSpace(name))] = strings.Trim(strings.TrimSpace(arg), "\"")
		}
	}
	return CacheControl{m}
}
