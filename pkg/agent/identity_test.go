package agent

import (
	"strings"
	"testing"
)

func TestResolveUserID_ExplicitWins(t *testing.T) {
	if got := ResolveUserID("  alice ", "discord", "123"); got != "alice" {
		t.Fatalf("expected explicit id, got %q", got)
	}
}

func TestResolveUserID_DeterministicFromActor(t *testing.T) {
	k1 := ResolveUserID("", "Discord", "user-1")
	k2 := ResolveUserID("", "discord", "user-1")
	if k1 != k2 {
		t.Fatalf("expected deterministic ids, got %q vs %q", k1, k2)
	}
	if !strings.HasPrefix(k1, identityVersion+":") {
		t.Fatalf("expected versioned id, got %q", k1)
	}
	if k3 := ResolveUserID("", "discord", "user-2"); k3 == k1 {
		t.Fatalf("expected different ids for different actors")
	}
}

func TestResolveUserID_AnonymousFallback(t *testing.T) {
	a := ResolveUserID("", "", "")
	b := ResolveUserID("", "stdin", "")
	if !isAnonymous(a) || !isAnonymous(b) {
		t.Fatalf("expected anonymous ids, got %q and %q", a, b)
	}
	if a == b {
		t.Fatalf("expected distinct anonymous ids")
	}
}

func TestRequestUserID_AnonymousIsStablePerRequest(t *testing.T) {
	a := requestUserID("", "stdio", "req-1")
	if !isAnonymous(a) {
		t.Fatalf("expected anonymous id, got %q", a)
	}
	if b := requestUserID("", "stdio", "req-1"); b != a {
		t.Fatalf("expected stable id for the same request, got %q and %q", a, b)
	}
	if c := requestUserID("", "stdio", "req-2"); c == a {
		t.Fatalf("expected distinct ids for distinct requests")
	}
	if got := requestUserID("bob", "stdio", "req-1"); got != "bob" {
		t.Fatalf("explicit user id should win, got %q", got)
	}
}
