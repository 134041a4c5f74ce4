package ratelimit

import "testing"

func TestLimiter_AllowsUpToBurstThenDenies(t *testing.T) {
	l := New(1, 2)

	if !l.Allow("client-a") {
		t.Fatal("expected first request within burst to be allowed")
	}
	if !l.Allow("client-a") {
		t.Fatal("expected second request within burst to be allowed")
	}
	if l.Allow("client-a") {
		t.Fatal("expected third request to exceed burst and be denied")
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := New(1, 1)

	if !l.Allow("client-a") {
		t.Fatal("expected client-a's first request to be allowed")
	}
	if l.Allow("client-a") {
		t.Fatal("expected client-a's second request to be denied")
	}
	if !l.Allow("client-b") {
		t.Fatal("expected client-b to have its own independent bucket")
	}
}
