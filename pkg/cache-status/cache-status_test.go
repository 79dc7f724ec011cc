package cachestatus

import "testing"

func TestString(t *testing.T) {
	cases := []struct {
		build func(*CacheStatus)
		want  string
	}{
		{func(cs *CacheStatus) { cs.Hit(); cs.TTL(120) }, "Portal-Cache; hit; ttl=120"},
		{func(cs *CacheStatus) { cs.Forward(FwdReasonUriMiss); cs.Stored = true; cs.TTL(3600) }, "Portal-Cache; fwd=uri-miss; stored; ttl=3600"},
		{func(cs *CacheStatus) { cs.Forward(FwdReasonRequest) }, "Portal-Cache; fwd=request"},
		{func(cs *CacheStatus) { cs.Hit(); cs.TTL(-60); cs.Detail = "stale-if-error" }, "Portal-Cache; hit; ttl=-60; detail=stale-if-error"},
		{func(cs *CacheStatus) { cs.Forward("") }, "Portal-Cache; fwd=miss"},
	}
	for _, c := range cases {
		cs := CacheStatus{}
		c.build(&cs)
		if got := cs.String(); got != c.want {
			t.Fatalf("Got %q, want %q", got, c.want)
		}
	}
}

func TestHitClearsReason(t *testing.T) {
	cs := CacheStatus{}
	cs.Forward(FwdReasonStale)
	cs.Hit()
	if !cs.IsHit() || cs.FwdReason != "" {
		t.Fatalf("Status %+v", cs)
	}
}
