// Package repository defines the rating record store interface and errors.
package repository

// storeConfig collects construction options for the badger store.
type storeConfig struct {
	dir string
}

// Option applies a configuration option to the store.
type Option func(*storeConfig)

// WithDir sets the on-disk database directory. Empty keeps the store
// in memory.
func WithDir(dir string) Option {
	return func(c *storeConfig) {
		c.dir = dir
	}
}
