package postgres

import "collectwise/internal/storage"

func init() {
	// registers the postgres account store factory
	storage.Register("postgres", New)
}
