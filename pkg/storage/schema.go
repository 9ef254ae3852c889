package storage

import "fmt"

// Key prefixes
const (
	prefixEntity = "/entity/"
)

// EntityKey returns the key for storing an entity
// Format: /entity/{kind}/{id}
func EntityKey(kind, id string) []byte {
	return []byte(fmt.Sprintf("%s%s/%s", prefixEntity, kind, id))
}

// EntityKeyPrefix returns the prefix shared by all entities of a kind
// Format: /entity/{kind}/
func EntityKeyPrefix(kind string) []byte {
	return []byte(fmt.Sprintf("%s%s/", prefixEntity, kind))
}

// incrementPrefix returns the smallest key greater than every key with the
// given prefix, for use as an exclusive iterator upper bound
func incrementPrefix(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
