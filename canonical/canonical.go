// Package canonical produces the deterministic serializations every
// proof is computed over. Two independent implementations given the
// same payload must emit identical bytes, so the rules here are strict:
// keys sort by code point, every string is NFC-normalized, numbers
// never use exponent notation, and anything without a single defined
// serialization is rejected outright.
package canonical

import (
	"bytes"
	"encoding/json"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/proofbind/proofbind/verr"
)

// Structured canonicalizes a decoded JSON-shaped value: maps, slices,
// strings, bools, nil, json.Number, and Go numeric scalars. The result
// is compact JSON with object keys in code-point order.
func Structured(v any) (string, error) {
	var buf bytes.Buffer
	if err := appendValue(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// StructuredBytes decodes raw JSON and canonicalizes it.
func StructuredBytes(raw []byte) (string, error) {
	v, err := Decode(raw)
	if err != nil {
		return "", err
	}
	return Structured(v)
}

// Decode parses raw JSON into the value shape Structured accepts.
// Numbers are kept as literals so integer precision is never lost
// before the range check.
func Decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, verr.New(verr.MalformedRequest, "invalid json payload")
	}
	// Trailing garbage after the first value is not a payload.
	if dec.More() {
		return nil, verr.New(verr.MalformedRequest, "trailing data after json payload")
	}
	return v, nil
}

func appendValue(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if x {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		return appendString(buf, x)
	case json.Number:
		return appendNumberLiteral(buf, x.String())
	case float64:
		return appendFloat(buf, x)
	case float32:
		return appendFloat(buf, float64(x))
	case int:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(x, 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(x, 10))
	case uint:
		buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case map[string]any:
		return appendObject(buf, x)
	case []any:
		buf.WriteByte('[')
		for i, el := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := appendValue(buf, el); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return verr.New(verr.CanonicalizationFailed, "value has no canonical serialization")
	}
	return nil
}

func appendObject(buf *bytes.Buffer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	byKey := make(map[string]any, len(m))
	for k, v := range m {
		nk, err := normalize(k)
		if err != nil {
			return err
		}
		if _, dup := byKey[nk]; dup {
			return verr.New(verr.CanonicalizationFailed, "keys collide after normalization")
		}
		byKey[nk] = v
		keys = append(keys, nk)
	}
	sort.Strings(keys)
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeEscaped(buf, k)
		buf.WriteByte(':')
		if err := appendValue(buf, byKey[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func appendString(buf *bytes.Buffer, s string) error {
	ns, err := normalize(s)
	if err != nil {
		return err
	}
	writeEscaped(buf, ns)
	return nil
}

func normalize(s string) (string, error) {
	if !utf8.ValidString(s) {
		return "", verr.New(verr.CanonicalizationFailed, "string is not valid utf-8")
	}
	return norm.NFC.String(s), nil
}

// writeEscaped emits a JSON string with the minimal fixed escape set:
// quote, backslash, the short control escapes, and \u00XX for the rest
// of the control range. No HTML escaping, no optional escapes.
func writeEscaped(buf *bytes.Buffer, s string) {
	const hexDigits = "0123456789abcdef"
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			buf.WriteString(`\"`)
		case c == '\\':
			buf.WriteString(`\\`)
		case c == '\b':
			buf.WriteString(`\b`)
		case c == '\f':
			buf.WriteString(`\f`)
		case c == '\n':
			buf.WriteString(`\n`)
		case c == '\r':
			buf.WriteString(`\r`)
		case c == '\t':
			buf.WriteString(`\t`)
		case c < 0x20:
			buf.WriteString(`\u00`)
			buf.WriteByte(hexDigits[c>>4])
			buf.WriteByte(hexDigits[c&0xf])
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte('"')
}

// appendNumberLiteral renders a JSON number literal in canonical form.
// Integer literals must fit int64 or uint64 exactly; anything wider has
// no faithful representation and is rejected rather than silently
// rounded. Non-integer literals go through float64 and are re-rendered
// without exponent notation or trailing zeros.
func appendNumberLiteral(buf *bytes.Buffer, lit string) error {
	if lit == "" {
		return verr.New(verr.CanonicalizationFailed, "empty number literal")
	}
	if !strings.ContainsAny(lit, ".eE") {
		if strings.HasPrefix(lit, "-") {
			n, err := strconv.ParseInt(lit, 10, 64)
			if err != nil {
				return verr.New(verr.CanonicalizationFailed, "integer out of representable range")
			}
			if n == 0 {
				buf.WriteByte('0')
				return nil
			}
			buf.WriteString(strconv.FormatInt(n, 10))
			return nil
		}
		n, err := strconv.ParseUint(lit, 10, 64)
		if err != nil {
			return verr.New(verr.CanonicalizationFailed, "integer out of representable range")
		}
		buf.WriteString(strconv.FormatUint(n, 10))
		return nil
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return verr.New(verr.CanonicalizationFailed, "unparseable number literal")
	}
	return appendFloat(buf, f)
}

func appendFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return verr.New(verr.CanonicalizationFailed, "non-finite number")
	}
	out := strconv.FormatFloat(f, 'f', -1, 64)
	if out == "-0" {
		out = "0"
	}
	buf.WriteString(out)
	return nil
}

// FormEncoded canonicalizes an application/x-www-form-urlencoded body:
// decode (plus signs are literal spaces), NFC-normalize keys and
// values, sort stably by key so repeated keys keep their relative
// order, and re-encode with one consistent escaper. Canonical input
// passes through unchanged.
func FormEncoded(input string) (string, error) {
	if input == "" {
		return "", nil
	}
	type pair struct{ key, val string }
	var pairs []pair
	for _, seg := range strings.Split(input, "&") {
		if seg == "" {
			continue
		}
		rawKey, rawVal, _ := strings.Cut(seg, "=")
		key, err := decodeComponent(rawKey)
		if err != nil {
			return "", err
		}
		val, err := decodeComponent(rawVal)
		if err != nil {
			return "", err
		}
		if key, err = normalize(key); err != nil {
			return "", err
		}
		if val, err = normalize(val); err != nil {
			return "", err
		}
		pairs = append(pairs, pair{key, val})
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })
	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.val))
	}
	return b.String(), nil
}

func decodeComponent(s string) (string, error) {
	out, err := url.QueryUnescape(s)
	if err != nil {
		return "", verr.New(verr.CanonicalizationFailed, "invalid percent encoding")
	}
	return out, nil
}

// Binding normalizes a method and path into the "METHOD path" string a
// context is anchored to. Fragments and query strings never participate
// in the binding.
func Binding(method, path string) string {
	m := strings.ToUpper(strings.TrimSpace(method))
	p := path
	if i := strings.IndexByte(p, '#'); i >= 0 {
		p = p[:i]
	}
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	var b strings.Builder
	b.Grow(len(p))
	var prevSlash bool
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(p[i])
	}
	p = b.String()
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return m + " " + p
}
