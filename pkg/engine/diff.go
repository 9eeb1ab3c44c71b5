package engine

import (
	"reflect"
)

// Diff computes the structural difference between two config trees as an
// ItemUpdate that, applied to from, yields to (modulo ignored keys and list
// element order).
//
// Rules:
//   - ignoreKeys are stripped from both roots before comparing, at the top
//     level only; nested occurrences of the same key names still compare.
//   - keys present only in to land in Add with their whole subtree.
//   - keys present only in from land in Delete with an empty-map marker.
//   - common keys with both sides maps recurse, splicing nested buckets
//     under the key.
//   - common keys with both sides lists diff as sets: Add holds elements of
//     to missing from from (in to's order), Delete holds elements of from
//     missing from to. Duplicate elements collapse.
//   - any other unequal pairing, including list-vs-map, becomes a
//     whole-value Change.
//
// Scalar equality is type sensitive: 0, false, nil and "" are pairwise
// distinct.
func Diff(from, to ConfigTree, ignoreKeys ...string) *ItemUpdate {
	if len(ignoreKeys) > 0 {
		from = withoutKeys(from, ignoreKeys)
		to = withoutKeys(to, ignoreKeys)
	}
	update := diffMaps(from, to)
	if update == nil {
		return &ItemUpdate{}
	}
	return update
}

// Same reports whether two config trees are structurally equal modulo the
// ignored root keys.
func Same(a, b ConfigTree, ignoreKeys ...string) bool {
	return Diff(a, b, ignoreKeys...).IsEmpty()
}

// diffMaps compares two maps and returns nil when they are equal.
func diffMaps(from, to map[string]any) *ItemUpdate {
	var add, change, del map[string]any

	for key, toVal := range to {
		fromVal, ok := from[key]
		if !ok {
			add = setKey(add, key, toVal)
			continue
		}
		if equalValue(fromVal, toVal) {
			continue
		}

		fromMap, fromIsMap := fromVal.(map[string]any)
		toMap, toIsMap := toVal.(map[string]any)
		if fromIsMap && toIsMap {
			nested := diffMaps(fromMap, toMap)
			if nested == nil {
				continue
			}
			if len(nested.Add) > 0 {
				add = setKey(add, key, nested.Add)
			}
			if len(nested.Change) > 0 {
				change = setKey(change, key, nested.Change)
			}
			if len(nested.Delete) > 0 {
				del = setKey(del, key, nested.Delete)
			}
			continue
		}

		fromList, fromIsList := fromVal.([]any)
		toList, toIsList := toVal.([]any)
		if fromIsList && toIsList {
			added := missingElements(toList, fromList)
			removed := missingElements(fromList, toList)
			if len(added) > 0 {
				add = setKey(add, key, added)
			}
			if len(removed) > 0 {
				del = setKey(del, key, removed)
			}
			continue
		}

		// Mixed kinds or unequal scalars degrade to a whole-value change.
		change = setKey(change, key, toVal)
	}

	for key := range from {
		if _, ok := to[key]; !ok {
			del = setKey(del, key, map[string]any{})
		}
	}

	if len(add) == 0 && len(change) == 0 && len(del) == 0 {
		return nil
	}
	return &ItemUpdate{Add: add, Change: change, Delete: del}
}

// missingElements returns the elements of list that have no equal element
// in reference, preserving list's order.
func missingElements(list, reference []any) []any {
	var missing []any
	for _, elem := range list {
		if !containsElement(reference, elem) {
			missing = append(missing, elem)
		}
	}
	return missing
}

func containsElement(list []any, elem any) bool {
	for _, candidate := range list {
		if equalValue(candidate, elem) {
			return true
		}
	}
	return false
}

// equalValue is deep, type-sensitive equality over config values.
func equalValue(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

func withoutKeys(tree map[string]any, keys []string) map[string]any {
	stripped := make(map[string]any, len(tree))
	for k, v := range tree {
		stripped[k] = v
	}
	for _, key := range keys {
		delete(stripped, key)
	}
	return stripped
}

func setKey(m map[string]any, key string, val any) map[string]any {
	if m == nil {
		m = make(map[string]any)
	}
	m[key] = val
	return m
}
