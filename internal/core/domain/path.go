package domain

import "strings"

// FieldPath addresses one nested field inside a document body as a sequence
// of map keys. The textual form joins segments with '.'; a literal dot in a
// segment is written `\.` and a literal backslash `\\`.
type FieldPath []string

// ParsePath parses the dotted textual form into segments.
func ParsePath(s string) FieldPath {
	if s == "" {
		return nil
	}
	var (
		segs []string
		cur  strings.Builder
		esc  bool
	)
	for _, r := range s {
		switch {
		case esc:
			cur.WriteRune(r)
			esc = false
		case r == '\\':
			esc = true
		case r == '.':
			segs = append(segs, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	segs = append(segs, cur.String())
	return segs
}

// String renders the path back to its dotted form, escaping as needed.
func (p FieldPath) String() string {
	parts := make([]string, len(p))
	for i, seg := range p {
		seg = strings.ReplaceAll(seg, `\`, `\\`)
		seg = strings.ReplaceAll(seg, ".", `\.`)
		parts[i] = seg
	}
	return strings.Join(parts, ".")
}

// Get reads the value at the path. Segments match structurally: a missing
// key or a non-map intermediate yields ok=false.
func (p FieldPath) Get(body map[string]any) (any, bool) {
	if len(p) == 0 {
		return nil, false
	}
	cur := body
	for i, seg := range p {
		v, ok := cur[seg]
		if !ok {
			return nil, false
		}
		if i == len(p)-1 {
			return v, true
		}
		next, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

// Set writes the value at the path, creating intermediate maps as needed.
// A non-map intermediate is replaced by a map, matching the original
// set-by-path behaviour.
func (p FieldPath) Set(body map[string]any, value any) {
	if len(p) == 0 {
		return
	}
	cur := body
	for _, seg := range p[:len(p)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	cur[p[len(p)-1]] = value
}

// Wire sentinels inherited from the original command surface. They are
// parsed exactly once, at the boundary, into a Target; nothing deeper in
// the system compares field names against them.
const (
	// TargetAll addresses the whole document body instead of one field.
	TargetAll = "#all"

	// ValueDelete, written to TargetAll, tombstones the document.
	ValueDelete = "#delete"
)

// Target is the typed form of a path argument.
type Target struct {
	// All is true when the argument was the #all sentinel.
	All bool

	// Path is the parsed field path when All is false.
	Path FieldPath
}

// ParseTarget resolves the sentinel/path ambiguity of a raw path argument.
func ParseTarget(raw string) Target {
	if raw == TargetAll {
		return Target{All: true}
	}
	return Target{Path: ParsePath(raw)}
}

// IsDeleteValue reports whether a set-value payload is the tombstone
// sentinel.
func IsDeleteValue(v any) bool {
	s, ok := v.(string)
	return ok && s == ValueDelete
}
