package plugins

import (
	"github.com/kilianp07/ess/core/factory"
	"github.com/kilianp07/ess/core/statestore"
	"github.com/kilianp07/ess/infra/store"
)

type sqliteConf struct {
	Path string `json:"path"`
}

func init() {
	_ = RegisterStore("memory", func(map[string]any) (statestore.Store, error) {
		return statestore.NewMemoryStore(), nil
	})
	_ = RegisterStore("sqlite", func(conf map[string]any) (statestore.Store, error) {
		var c sqliteConf
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			c.Path = "ess.db"
		}
		return store.NewSQLiteStore(c.Path)
	})
}
