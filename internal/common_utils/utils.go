package commonutils

import "sync"

// CopyToSyncMap stores every entry of src into dst. Used to prime
// concurrent lookup caches from a map built single-threaded.
func CopyToSyncMap[K comparable, V any](src map[K]V, dst *sync.Map) {
	for k, v := range src {
		dst.Store(k, v)
	}
}

// CloneSlice returns a copy of s, or nil for a nil input. Replay and
// resolve paths hand out slices that must not alias their immutable
// sources.
func CloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}
