package cache

import "strings"

// KeyPrefix namespaces every key written by this package.
const KeyPrefix = "enrich"

// Key identifies one cached object.
type Key struct {
	// Kind is the object type (e.g. "usergeneset").
	Kind string

	// ID is the object identifier.
	ID string
}

// GeneSetKey returns the key of a user gene set.
func GeneSetKey(id string) Key {
	return Key{Kind: "usergeneset", ID: id}
}

// String returns the Redis key.
// Format: enrich:kind:id
//
// Example:
//
//	enrich:usergeneset:0b6b9f0e-4d43-4c2e-9c7e-0f0d0c1e2f3a
func (k Key) String() string {
	parts := []string{KeyPrefix}
	if k.Kind != "" {
		parts = append(parts, k.Kind)
	}
	if id := strings.TrimSpace(k.ID); id != "" {
		parts = append(parts, id)
	}

	return strings.Join(parts, ":")
}
