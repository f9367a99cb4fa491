package xid

import (
	"strings"
	"testing"
)

func TestNewPrefixed(t *testing.T) {
	id := New("stk")
	if !strings.HasPrefix(id, "stk_") {
		t.Fatalf("id %q missing prefix", id)
	}
	if len(id) != len("stk_")+32 {
		t.Fatalf("id %q has unexpected length %d", id, len(id))
	}
	if id == New("stk") {
		t.Fatal("two ids collided")
	}
}

func TestNumberShape(t *testing.T) {
	n := Number("SO")
	parts := strings.Split(n, "-")
	if len(parts) != 3 {
		t.Fatalf("number %q does not have three segments", n)
	}
	if parts[0] != "SO" || len(parts[1]) != 8 || len(parts[2]) != 6 {
		t.Fatalf("number %q has unexpected segment shapes", n)
	}
	if n == Number("SO") {
		t.Fatal("two numbers collided")
	}
}
