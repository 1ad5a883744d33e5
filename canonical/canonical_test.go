package canonical

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/proofbind/proofbind/verr"
)

func TestStructuredSortsKeys(t *testing.T) {
	got, err := Structured(map[string]any{"z": json.Number("1"), "a": json.Number("2")})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if got != `{"a":2,"z":1}` {
		t.Fatalf("unexpected canonical form: %s", got)
	}
}

func TestStructuredNestedDeterminism(t *testing.T) {
	v := map[string]any{
		"b": []any{json.Number("1"), "two", map[string]any{"y": true, "x": nil}},
		"a": map[string]any{"c": "d"},
	}
	want := `{"a":{"c":"d"},"b":[1,"two",{"x":null,"y":true}]}`
	for i := 0; i < 20; i++ {
		got, err := Structured(v)
		if err != nil {
			t.Fatalf("canonicalize: %v", err)
		}
		if got != want {
			t.Fatalf("iteration %d diverged: %s", i, got)
		}
	}
}

func TestStructuredNumberRendering(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{json.Number("-0"), "0"},
		{float64(math.Copysign(0, -1)), "0"},
		{json.Number("1e3"), "1000"},
		{json.Number("1.50"), "1.5"},
		{json.Number("0.1"), "0.1"},
		{json.Number("9223372036854775807"), "9223372036854775807"},
		{json.Number("18446744073709551615"), "18446744073709551615"},
		{float64(2), "2"},
	}
	for _, c := range cases {
		got, err := Structured(c.in)
		if err != nil {
			t.Fatalf("canonicalize %v: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("canonicalize %v: got %s, want %s", c.in, got, c.want)
		}
	}
}

func TestStructuredRejectsNonFinite(t *testing.T) {
	for _, v := range []any{math.NaN(), math.Inf(1), math.Inf(-1), json.Number("1e999")} {
		_, err := Structured(v)
		if verr.KindOf(err) != verr.CanonicalizationFailed {
			t.Fatalf("expected CanonicalizationFailed for %v, got %v", v, err)
		}
	}
}

func TestStructuredRejectsWideIntegers(t *testing.T) {
	_, err := Structured(json.Number("18446744073709551616"))
	if verr.KindOf(err) != verr.CanonicalizationFailed {
		t.Fatalf("expected CanonicalizationFailed, got %v", err)
	}
	_, err = Structured(json.Number("-9223372036854775809"))
	if verr.KindOf(err) != verr.CanonicalizationFailed {
		t.Fatalf("expected CanonicalizationFailed, got %v", err)
	}
}

func TestStructuredRejectsOpaqueValues(t *testing.T) {
	_, err := Structured(func() {})
	if verr.KindOf(err) != verr.CanonicalizationFailed {
		t.Fatalf("expected CanonicalizationFailed, got %v", err)
	}
	_, err = Structured(map[string]any{"ch": make(chan int)})
	if verr.KindOf(err) != verr.CanonicalizationFailed {
		t.Fatalf("expected CanonicalizationFailed, got %v", err)
	}
}

func TestStructuredNFCNormalization(t *testing.T) {
	// U+0065 U+0301 (e + combining acute) must compose to U+00E9.
	composed, err := Structured("é")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	decomposed, err := Structured("é")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if composed != decomposed {
		t.Fatalf("NFC forms differ: %q vs %q", composed, decomposed)
	}
}

func TestStructuredEscaping(t *testing.T) {
	got, err := Structured("a\"b\\c\nd\u0001")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if got != `"a\"b\\c\nd\u0001"` {
		t.Fatalf("unexpected escaping: %s", got)
	}
}

func TestStructuredBytesPure(t *testing.T) {
	raw := []byte(`{"z": 1, "a": {"nested": [1, 2.0, -0]}, "s": "x"}`)
	first, err := StructuredBytes(raw)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if first != `{"a":{"nested":[1,2,0]},"s":"x","z":1}` {
		t.Fatalf("unexpected canonical form: %s", first)
	}
	again, err := StructuredBytes([]byte(first))
	if err != nil {
		t.Fatalf("recanonicalize: %v", err)
	}
	if again != first {
		t.Fatalf("canonical output not stable: %s vs %s", again, first)
	}
}

func TestStructuredBytesRejectsGarbage(t *testing.T) {
	if _, err := StructuredBytes([]byte(`{"a":1} trailing`)); verr.KindOf(err) != verr.MalformedRequest {
		t.Fatalf("expected MalformedRequest, got %v", err)
	}
	if _, err := StructuredBytes([]byte(`{`)); verr.KindOf(err) != verr.MalformedRequest {
		t.Fatalf("expected MalformedRequest, got %v", err)
	}
}

func TestFormEncodedSortsAndDecodes(t *testing.T) {
	got, err := FormEncoded("b=2&a=1+and+2&a=%41")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if got != "a=1+and+2&a=A&b=2" {
		t.Fatalf("unexpected canonical form: %s", got)
	}
}

func TestFormEncodedStableOnRepeatedKeys(t *testing.T) {
	got, err := FormEncoded("k=first&j=x&k=second&k=third")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if got != "j=x&k=first&k=second&k=third" {
		t.Fatalf("repeated keys reordered: %s", got)
	}
}

func TestFormEncodedRoundTrip(t *testing.T) {
	canon, err := FormEncoded("z=%C3%A9&a=hello+world")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	again, err := FormEncoded(canon)
	if err != nil {
		t.Fatalf("recanonicalize: %v", err)
	}
	if again != canon {
		t.Fatalf("canonical form not a fixed point: %s vs %s", again, canon)
	}
}

func TestFormEncodedRejectsBadEscapes(t *testing.T) {
	if _, err := FormEncoded("a=%zz"); verr.KindOf(err) != verr.CanonicalizationFailed {
		t.Fatalf("expected CanonicalizationFailed, got %v", err)
	}
}

func TestBinding(t *testing.T) {
	cases := []struct {
		method, path, want string
	}{
		{"post", "/api//test/", "POST /api/test"},
		{"get", "api/items", "GET /api/items"},
		{"GET", "/", "GET /"},
		{"delete", "//", "DELETE /"},
		{"put", "/a/b?x=1#frag", "PUT /a/b"},
		{"get", "/a#frag?notquery", "GET /a"},
		{" get ", "/one///two/", "GET /one/two"},
	}
	for _, c := range cases {
		if got := Binding(c.method, c.path); got != c.want {
			t.Fatalf("Binding(%q, %q) = %q, want %q", c.method, c.path, got, c.want)
		}
	}
}

func TestProject(t *testing.T) {
	v := map[string]any{
		"user": map[string]any{"id": json.Number("7"), "name": "ada"},
		"note": "free text",
	}
	out := Project(v, []string{"user.id"})
	got, err := Structured(out)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if got != `{"user":{"id":7}}` {
		t.Fatalf("unexpected projection: %s", got)
	}

	// Unresolvable paths are simply absent.
	out = Project(v, []string{"user.id", "missing.leaf"})
	got, err = Structured(out)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if got != `{"user":{"id":7}}` {
		t.Fatalf("unexpected projection: %s", got)
	}
}

func TestFilterForm(t *testing.T) {
	got, err := FilterForm("b=2&a=1&c=3", []string{"a", "c"})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if got != "a=1&c=3" {
		t.Fatalf("unexpected filtered form: %s", got)
	}
	got, err = FilterForm("b=2&a=1", nil)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if got != "b=2&a=1" {
		t.Fatalf("empty scope must pass input through, got %s", got)
	}
}
