package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// hashKey generates a cache key by hashing the components.
// The key format is: prefix:hash(parts...)
func hashKey(prefix string, parts ...interface{}) string {
	data, _ := json.Marshal(parts)
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s", prefix, hex.EncodeToString(hash[:]))
}

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// HashJSON hashes the JSON encoding of v. Map keys are encoded in sorted
// order, so equal values hash equally.
func HashJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return Hash(data), nil
}

// Keyer derives cache keys for the artifacts overclock caches.
type Keyer interface {
	// CatalogKey identifies an ingested catalog by its source
	// (file path plus content hash, or database URI and collection).
	CatalogKey(source, version string) string
	// PlanKey identifies a solved plan by catalog hash and options hash.
	PlanKey(catalogHash, optionsHash string) string
}

// DefaultKeyer produces unscoped keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// CatalogKey returns "catalog:<hash>".
func (DefaultKeyer) CatalogKey(source, version string) string {
	return hashKey("catalog", source, version)
}

// PlanKey returns "plan:<hash>".
func (DefaultKeyer) PlanKey(catalogHash, optionsHash string) string {
	return hashKey("plan", catalogHash, optionsHash)
}
