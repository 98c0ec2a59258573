package plugins

import (
	"github.com/kilianp07/ess/core/factory"
	"github.com/kilianp07/ess/core/statestore"
)

// Stores builds state stores from their backend name.
var Stores = factory.NewRegistry[statestore.Store]()

// RegisterStore adds a store backend.
func RegisterStore(name string, f factory.Factory[statestore.Store]) error {
	return Stores.Register(name, f)
}

// NewStore creates the store for backend with conf.
func NewStore(backend string, conf map[string]any) (statestore.Store, error) {
	return Stores.Create(factory.ModuleConfig{Type: backend, Conf: conf})
}
