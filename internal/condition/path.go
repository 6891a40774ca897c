// internal/condition/path.go
package condition

import "github.com/solatis/streamrouter/internal/types"

/*
 * Path resolution against record images.
 *
 * Key steps resolve against maps, index steps against lists within bounds.
 * Every other combination (key on a list, index on a map, any step on a
 * scalar or null, missing key, out-of-range index) yields types.NotFound,
 * which callers treat as a value rather than an error.
 */

func resolve(p *Path, rec *types.Record) any {
	var current any
	if p.Image == OldImage {
		current = map[string]any(rec.Old)
	} else {
		current = map[string]any(rec.New)
	}
	return resolveSegments(p.Segments, current)
}

func resolveSegments(segments []PathSegment, current any) any {
	for _, seg := range segments {
		switch v := current.(type) {
		case map[string]any, types.Image:
			if seg.IsIndex {
				return types.NotFound
			}
			m, _ := types.AsMap(v)
			next, ok := m[seg.Key]
			if !ok {
				return types.NotFound
			}
			current = next
		case []any:
			if !seg.IsIndex || seg.Index < 0 || seg.Index >= len(v) {
				return types.NotFound
			}
			current = v[seg.Index]
		default:
			return types.NotFound
		}
	}
	return current
}
