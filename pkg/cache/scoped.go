package cache

// ScopedKeyer wraps a Keyer with a prefix so that several deployments can
// share one Redis instance without seeing each other's plans.
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "overclock:staging:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// CatalogKey generates a prefixed catalog key.
func (k *ScopedKeyer) CatalogKey(source, version string) string {
	return k.prefix + k.inner.CatalogKey(source, version)
}

// PlanKey generates a prefixed plan key.
func (k *ScopedKeyer) PlanKey(catalogHash, optionsHash string) string {
	return k.prefix + k.inner.PlanKey(catalogHash, optionsHash)
}
