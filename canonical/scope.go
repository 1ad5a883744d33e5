package canonical

import "strings"

// Project reduces a structured value to the fields a scope selects.
// Paths use dot notation and traverse nested objects; a path that does
// not resolve is simply absent from the projection, so adding an
// unscoped field to a payload never changes the protected bytes.
// An empty scope returns v unchanged: the whole payload is protected.
func Project(v any, scope []string) any {
	if len(scope) == 0 {
		return v
	}
	out := map[string]any{}
	for _, path := range scope {
		val, ok := lookup(v, path)
		if ok {
			insert(out, path, val)
		}
	}
	return out
}

func lookup(v any, path string) (any, bool) {
	cur := v
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func insert(out map[string]any, path string, val any) {
	segs := strings.Split(path, ".")
	cur := out
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = val
}

// FilterForm keeps only the form pairs whose decoded key appears in
// scope. Paths are plain keys for form payloads; dots have no special
// meaning there.
func FilterForm(input string, scope []string) (string, error) {
	if len(scope) == 0 {
		return input, nil
	}
	keep := make(map[string]bool, len(scope))
	for _, k := range scope {
		nk, err := normalize(k)
		if err != nil {
			return "", err
		}
		keep[nk] = true
	}
	canon, err := FormEncoded(input)
	if err != nil {
		return "", err
	}
	if canon == "" {
		return "", nil
	}
	var parts []string
	for _, seg := range strings.Split(canon, "&") {
		rawKey, _, _ := strings.Cut(seg, "=")
		key, err := decodeComponent(rawKey)
		if err != nil {
			return "", err
		}
		if keep[key] {
			parts = append(parts, seg)
		}
	}
	return strings.Join(parts, "&"), nil
}
