// Package all registers every storage backend.
package all

import (
	_ "collectwise/internal/storage/mssql"
	_ "collectwise/internal/storage/postgres"
	_ "collectwise/internal/storage/sqlite"
)
