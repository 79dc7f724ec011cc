package ttlrules

import (
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type Rules []Rule

// Rule assigns a cache lifetime to matching upstream requests.
// Empty fields match everything; the first matching rule wins.
type Rule struct {
	Prefix string            `yaml:"prefix"`
	Path   string            `yaml:"path"`
	Method string            `yaml:"method"`
	Query  map[string]string `yaml:"query"`
	// Zero or negative disables caching for matching requests.
	TTL time.Duration `yaml:"ttl"`
}

// TTL returns the lifetime of the first rule matching the request.
func (r Rules) TTL(method string, u *url.URL) (time.Duration, bool) {
	if rule := r.find(method, u); rule != nil {
		return rule.TTL, true
	}
	return 0, false
}

func (r Rules) find(method string, u *url.URL) *Rule {
	if u == nil {
		return nil
	}
	log.Trace().Msgf("Finding rule for request %s:%s", method, u.Path)
rulesLoop:
	for i := range r {
		rule := r[i]
		if rule.Method != "" && !strings.EqualFold(rule.Method, method) {
			continue
		}
		if rule.Path != "" && rule.Path != u.Path {
			continue
		}
		if rule.Prefix != "" && !strings.HasPrefix(u.Path, rule.Prefix) {
			continue
		}
		if len(rule.Query) > 0 {
			qry := u.Query()
			for name, value := range rule.Query {
				if value == "" && !qry.Has(name) {
					continue rulesLoop
				} else if value != "" && qry.Get(name) != value {
					continue rulesLoop
				}
			}
		}
		return &r[i]
	}
	return nil
}
