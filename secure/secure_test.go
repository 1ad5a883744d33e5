package secure

import "testing"

func TestCompare(t *testing.T) {
	if !Compare("abc", "abc") {
		t.Fatalf("equal strings must compare equal")
	}
	if Compare("abc", "abd") {
		t.Fatalf("different strings must not compare equal")
	}
	if Compare("abc", "abcd") {
		t.Fatalf("different lengths must not compare equal")
	}
	if !Compare("", "") {
		t.Fatalf("empty strings are equal")
	}
}
