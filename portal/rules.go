package portal

import (
	"net/http"
	"time"

	ttlrules "github.com/always-cache/portal-cache/pkg/ttl-rules"
)

// DefaultRules are the cache lifetimes of the portal reads. Configured rules
// are put in front of these so they can override them.
func DefaultRules() ttlrules.Rules {
	return ttlrules.Rules{
		{Method: http.MethodPost, Path: "/src/profile.php", TTL: time.Hour},
		{Method: http.MethodPost, Path: "/app.php", Query: map[string]string{"a": "getStudDet"}, TTL: 10 * time.Minute},
		{Method: http.MethodGet, Path: "/src/results_new.php", Query: map[string]string{"a": "getResAll"}, TTL: time.Hour},
		{Method: http.MethodGet, Path: "/src/results_new.php", Query: map[string]string{"a": "getResults"}, TTL: 12 * time.Hour},
		{Method: http.MethodGet, Path: "/src/results_new.php", Query: map[string]string{"a": "getResDet"}, TTL: time.Hour},
		{Method: http.MethodPost, Path: "/src/notificationstatus.php", TTL: 10 * time.Minute},
		{Method: http.MethodPost, Path: "/src/practicaltimetable.php", TTL: time.Hour},
	}
}
