// Package cachekey derives deterministic cache identities from the loosely
// typed keys callers use to address resources: a plain path, an argument list
// whose first element is the path, or a record carrying a url field.
package cachekey

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type keyKind int

const (
	kindNil keyKind = iota
	kindPath
	kindArgs
	kindRecord
)

// Key is a closed variant over the supported key shapes. The zero value is
// the nil key, which signals "do not fetch".
type Key struct {
	kind  keyKind
	path  string
	args  []any
	extra map[string]any
}

// Path creates a key addressing a resource by its URL path.
func Path(p string) Key {
	return Key{kind: kindPath, path: p}
}

// Args creates a key from an ordered argument list. The first element is the
// resource path; the remaining elements scope the identity (e.g. auth tokens,
// page cursors).
func Args(args ...any) Key {
	return Key{kind: kindArgs, args: args}
}

// Record creates a key from a url plus named scope fields.
func Record(url string, extra map[string]any) Key {
	return Key{kind: kindRecord, path: url, extra: extra}
}

// IsNil reports whether the key is the nil key.
func (k Key) IsNil() bool {
	return k.kind == kindNil
}

// Build derives the canonical key for a path key with optional query
// parameters. The boolean result is false for the nil key, signalling that no
// fetch should be attempted.
//
// Args and Record keys pass through unchanged: parameters are not merged into
// them, and their identity is structural. A Path key with parameters becomes
// path + "?" + the parameter entries sorted lexicographically by name, so the
// same (path, params) pair always yields the same key regardless of insertion
// order.
func Build(key Key, params map[string]any) (Key, bool) {
	switch key.kind {
	case kindNil:
		return Key{}, false
	case kindArgs, kindRecord:
		return key, true
	case kindPath:
		if len(params) == 0 {
			return key, true
		}
		return Path(key.path + "?" + encodeParams(params)), true
	default:
		return Key{}, false
	}
}

// ExtractURL resolves the request path embedded in a key. The boolean result
// is false when no path can be resolved, which callers treat as "do not
// fetch". Malformed inputs degrade to a best-effort string conversion rather
// than an error.
func ExtractURL(key Key) (string, bool) {
	switch key.kind {
	case kindPath, kindRecord:
		return key.path, true
	case kindArgs:
		if len(key.args) == 0 {
			return "", false
		}
		if s, ok := key.args[0].(string); ok {
			return s, true
		}
		return fmt.Sprintf("%v", key.args[0]), true
	default:
		return "", false
	}
}

// Canonical returns the deterministic string form of the key used by stores
// for addressing. Path keys are their path; Args keys serialize each element
// in order; Record keys append their sorted extra fields to the url.
func (k Key) Canonical() string {
	switch k.kind {
	case kindPath:
		return k.path
	case kindArgs:
		parts := make([]string, 0, len(k.args))
		for _, a := range k.args {
			parts = append(parts, EncodeValue(a))
		}
		return "[" + strings.Join(parts, ",") + "]"
	case kindRecord:
		if len(k.extra) == 0 {
			return k.path
		}
		return k.path + "#" + encodeParams(k.extra)
	default:
		return ""
	}
}

// EncodeValue serializes a single parameter value. Strings pass through
// unquoted; everything else (numbers, booleans, arrays, objects) uses its
// JSON form. The same convention is used for query-string construction so
// cache keys and request URLs agree.
func EncodeValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func encodeParams(params map[string]any) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+EncodeValue(params[name]))
	}
	return strings.Join(parts, "&")
}
