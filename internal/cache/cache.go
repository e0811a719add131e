// Package cache holds small in-process caches for derived views.
package cache

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)

	// DeletePrefix drops every entry whose key starts with prefix and
	// returns how many were removed.
	DeletePrefix(prefix string) int

	Size() int
}

// Noop never stores anything. Services use it when caching is disabled.
type Noop[T any] struct{}

func (Noop[T]) Get(string) (T, bool) {
	var zero T
	return zero, false
}

func (Noop[T]) Set(string, T)           {}
func (Noop[T]) Delete(string)           {}
func (Noop[T]) DeletePrefix(string) int { return 0 }
func (Noop[T]) Size() int               { return 0 }
