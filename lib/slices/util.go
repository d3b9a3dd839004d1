package slices

import (
	"cmp"
	"sort"
)

// Deduplicate removes duplicate elements from a slice, keeping the first occurrence.
func Deduplicate[T any](slice []T, comparer func(a, b T) bool) []T {
	var result []T
	for _, value := range slice {
		found := false
		for _, existing := range result {
			if comparer(value, existing) {
				found = true
				break
			}
		}
		if !found {
			result = append(result, value)
		}
	}
	return result
}

// SortedKeys returns the keys of the map in ascending order.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i] < keys[j]
	})
	return keys
}
