package storage

// TableSpec describes a table in backend-neutral terms. Each backend renders
// its own DDL from it so that column types and constraints stay in one place.
type TableSpec struct {
	Name        string
	PrimaryKey  *PrimaryKeySpec
	Columns     []ColumnSpec
	Constraints []ConstraintSpec
}

type PrimaryKeySpec struct {
	Name string
	Type string // serial / bigserial / identity, mapped per backend
}

// ColumnSpec types are logical: "text" or "timestamp". Backends map them.
type ColumnSpec struct {
	Name     string
	Type     string
	Nullable bool
}

type ConstraintSpec struct {
	Kind    string // "unique"
	Columns []string
}

// Column names of the accounts table beyond account.Columns.
const (
	ColID        = "id"
	ColCreatedAt = "created_at"
	ColUpdatedAt = "updated_at"
)

// AccountsTable is the accounts table. balance is stored as text so the
// decimal round-trips exactly on every backend.
var AccountsTable = TableSpec{
	Name:       "accounts",
	PrimaryKey: &PrimaryKeySpec{Name: ColID, Type: "serial"},
	Columns: []ColumnSpec{
		{Name: "account_number", Type: "text"},
		{Name: "debtor_name", Type: "text", Nullable: true},
		{Name: "phone_number", Type: "text", Nullable: true},
		{Name: "balance", Type: "text"},
		{Name: "status", Type: "text", Nullable: true},
		{Name: "client_name", Type: "text", Nullable: true},
		{Name: ColCreatedAt, Type: "timestamp"},
		{Name: ColUpdatedAt, Type: "timestamp"},
	},
	Constraints: []ConstraintSpec{
		{Kind: "unique", Columns: []string{"account_number"}},
	},
}

// MutableColumns are overwritten on conflict; account_number and created_at
// are not.
var MutableColumns = []string{"debtor_name", "phone_number", "balance", "status", "client_name", ColUpdatedAt}

// InsertColumns is the insert column order used by every backend.
var InsertColumns = []string{"account_number", "debtor_name", "phone_number", "balance", "status", "client_name", ColCreatedAt, ColUpdatedAt}

// SelectColumns is the select column order used by every backend's scan.
var SelectColumns = InsertColumns
