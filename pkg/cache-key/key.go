package cachekey

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

var ErrorMethodNotSupported = fmt.Errorf("Method not supported")

const (
	namespaceSeparator = ":"
	methodSeparator    = ":"
	bodySeparator      = "\t"
)

type CacheKeyer struct {
	// Identifier prepended to every key.
	// Lets several pipelines share one cache store.
	Namespace string
	// Cache key prefix for this namespace
	Prefix string
}

func NewCacheKeyer(namespace string) CacheKeyer {
	prefix := ""
	if namespace != "" {
		prefix = namespace + namespaceSeparator
	}
	return CacheKeyer{
		Namespace: namespace,
		Prefix:    prefix,
	}
}

// MethodPrefix gets the key prefix for all requests with the given method.
func (c CacheKeyer) MethodPrefix(method string) string {
	return c.Prefix + strings.ToUpper(method) + methodSeparator
}

// Key derives the cache key for a request.
// The URL is normalized and its query merged with params, so that
// the same logical request always yields the same key.
// A non-empty form body is represented by its sha256 hash.
func (c CacheKeyer) Key(method, rawURL string, params, body url.Values) (string, error) {
	method = strings.ToUpper(method)
	if method != http.MethodGet && method != http.MethodPost {
		return "", ErrorMethodNotSupported
	}
	normalized, err := NormalizeURL(rawURL, params)
	if err != nil {
		return "", err
	}
	return c.MethodPrefix(method) + normalized + bodySeparator + bodyHash(body), nil
}

// ParseKey splits a key back into its method, URL and body hash.
// It returns an error if the key was not created by this keyer.
func (c CacheKeyer) ParseKey(key string) (method, uri, body string, err error) {
	if !strings.HasPrefix(key, c.Prefix) {
		return "", "", "", fmt.Errorf("Key and namespace do not match")
	}
	rest := strings.TrimPrefix(key, c.Prefix)
	rest, body, found := strings.Cut(rest, bodySeparator)
	if !found {
		return "", "", "", fmt.Errorf("Malformed key: %s", key)
	}
	method, uri, found = strings.Cut(rest, methodSeparator)
	if !found {
		return "", "", "", fmt.Errorf("Malformed key: %s", key)
	}
	return method, uri, body, nil
}

// NormalizeURL lower-cases scheme and host, drops default ports and fragments,
// and merges params into the query. Query keys end up sorted.
func NormalizeURL(rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if h, port, ok := strings.Cut(host, ":"); ok && !strings.HasPrefix(host, "[") {
		if (u.Scheme == "https" && port == "443") || (u.Scheme == "http" && port == "80") {
			host = h
		}
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" && u.Host != "" {
		u.Path = "/"
	}
	query := u.Query()
	for name, values := range params {
		for _, v := range values {
			query.Add(name, v)
		}
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// bodyHash returns the hash of a form body, or an empty string for no body.
func bodyHash(body url.Values) string {
	if len(body) == 0 {
		return ""
	}
	return fmt.Sprintf("%x", sha256.Sum256([]byte(body.Encode())))
}
