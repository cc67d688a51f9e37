package manifest

// Merge layers source over target and returns the result as a new tree.
// Neither input is modified.
//
// For every key in source: a mapping merges recursively into a mapping at the
// same key in target; a nil value is skipped so the target's value survives;
// anything else (scalars and lists) replaces the target's value wholesale.
// Merge is not commutative: callers apply defaults first, then user
// overrides, then any further layer.
func Merge(target, source Document) Document {
	out := target.Clone()
	mergeInto(out, source)
	return out
}

// MergeAll folds layers left to right with Merge.
func MergeAll(layers ...Document) Document {
	out := Document{}
	for _, layer := range layers {
		out = Merge(out, layer)
	}
	return out
}

func mergeInto(dst, src map[string]any) {
	for key, value := range src {
		if value == nil {
			continue
		}

		if srcMap, ok := asMap(value); ok {
			dstMap, ok := asMap(dst[key])
			if !ok {
				dstMap = map[string]any{}
			}
			// dst is already a private copy, so it can be mutated in place.
			mergeInto(dstMap, srcMap)
			dst[key] = dstMap
			continue
		}

		dst[key] = cloneValue(value)
	}
}
