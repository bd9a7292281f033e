package cachepolicy_test

import (
	"net/http"
	"strings"
	"testing"

	"apikeyproxy/internal/cachepolicy"
)

func TestBuildKey_NeverContainsRawAPIKey(t *testing.T) {
	rawKey := "sk_supersecretvalue12345"
	key := cachepolicy.BuildKey("GET", "/pst/find?searchWord=x", "*/*", "de-DE", rawKey)
	if strings.Contains(key, rawKey) {
		t.Fatalf("cache key leaks raw api key: %s", key)
	}
	if strings.Contains(strings.ToLower(key), strings.ToLower(rawKey)) {
		t.Fatalf("cache key leaks raw api key case-insensitively: %s", key)
	}
}

func TestBuildKey_StableAndSensitiveToAPIKey(t *testing.T) {
	k1 := cachepolicy.BuildKey("GET", "/path", "*/*", "de-DE", "key-a")
	k2 := cachepolicy.BuildKey("GET", "/path", "*/*", "de-DE", "key-a")
	if k1 != k2 {
		t.Fatalf("identical inputs produced different keys: %q vs %q", k1, k2)
	}

	k3 := cachepolicy.BuildKey("GET", "/path", "*/*", "de-DE", "key-b")
	if k1 == k3 {
		t.Fatalf("changing only api_key did not change the key")
	}
}

func TestBuildKey_HeaderCaseInsensitive(t *testing.T) {
	k1 := cachepolicy.BuildKey("GET", "/path", "*/*", "de-DE", "key")
	k2 := cachepolicy.BuildKey("GET", "/path", "*/*", "DE-de", "key")
	if k1 != k2 {
		t.Fatalf("case-only difference in accept-language changed the key: %q vs %q", k1, k2)
	}

	k3 := cachepolicy.BuildKey("GET", "/path", "APPLICATION/JSON", "de-DE", "key")
	k4 := cachepolicy.BuildKey("GET", "/path", "application/json", "de-DE", "key")
	if k3 != k4 {
		t.Fatalf("case-only difference in accept changed the key: %q vs %q", k3, k4)
	}
}

func TestBuildKey_EmptyAPIKeyContributesEmptySalt(t *testing.T) {
	k := cachepolicy.BuildKey("GET", "/path", "*/*", "de-DE", "")
	if !strings.HasSuffix(k, "|de-de|") {
		t.Fatalf("expected empty salt segment, got %q", k)
	}
}

func TestDecide_NonCacheableStatuses(t *testing.T) {
	for _, status := range []int{204, 304, 199, 300, 404, 500} {
		d := cachepolicy.Decide(status, "max-age=60", cachepolicy.DecideOptions{})
		if d.Cacheable {
			t.Errorf("status %d: expected not cacheable, got cacheable", status)
		}
	}
}

func TestDecide_NoStoreAndPrivate(t *testing.T) {
	for _, cc := range []string{"no-store", "private", "public, private", "no-store, max-age=60"} {
		d := cachepolicy.Decide(200, cc, cachepolicy.DecideOptions{})
		if d.Cacheable {
			t.Errorf("cache-control %q: expected not cacheable", cc)
		}
	}
}

func TestDecide_TTLResolutionOrder(t *testing.T) {
	d := cachepolicy.Decide(200, "max-age=30, s-maxage=90", cachepolicy.DecideOptions{})
	if !d.Cacheable || d.TTLSeconds != 90 {
		t.Fatalf("expected s-maxage to win with ttl=90, got %+v", d)
	}

	d2 := cachepolicy.Decide(200, "max-age=30", cachepolicy.DecideOptions{})
	if !d2.Cacheable || d2.TTLSeconds != 30 {
		t.Fatalf("expected max-age ttl=30, got %+v", d2)
	}
}

func TestDecide_NonPositiveTTLNotCacheable(t *testing.T) {
	d := cachepolicy.Decide(200, "max-age=0", cachepolicy.DecideOptions{})
	if d.Cacheable {
		t.Fatalf("max-age=0 must not be cacheable, got %+v", d)
	}
}

func TestDecide_NoDirectivesCacheableNoTTL(t *testing.T) {
	d := cachepolicy.Decide(200, "", cachepolicy.DecideOptions{})
	if !d.Cacheable || d.TTLSeconds != 0 {
		t.Fatalf("expected cacheable with unset ttl, got %+v", d)
	}
}

func TestDecide_IgnoreUpstreamControl(t *testing.T) {
	d := cachepolicy.Decide(200, "no-store", cachepolicy.DecideOptions{IgnoreUpstreamControl: true})
	if !d.Cacheable {
		t.Fatalf("ignoreUpstreamControl should force cacheable=true, got %+v", d)
	}
}

func TestShouldBypass_Authorization(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer abc")
	if !cachepolicy.ShouldBypass(h, "/pst/find", nil) {
		t.Fatalf("expected bypass when Authorization header present")
	}
}

func TestShouldBypass_PathPrefixes(t *testing.T) {
	h := http.Header{}
	if !cachepolicy.ShouldBypass(h, "/private/x", []string{"/private"}) {
		t.Fatalf("expected bypass for exact prefix match")
	}
	if !cachepolicy.ShouldBypass(h, "/private", []string{"/private"}) {
		t.Fatalf("expected bypass for exact path match")
	}
	if cachepolicy.ShouldBypass(h, "/publicish", []string{"/public"}) {
		t.Fatalf("must not bypass for a path that merely shares a prefix string")
	}
	if !cachepolicy.ShouldBypass(h, "/anything", []string{"/"}) {
		t.Fatalf("prefix '/' must bypass everything")
	}
}
