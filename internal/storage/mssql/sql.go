package mssql

import (
	"fmt"
	"strings"

	"collectwise/internal/storage"
)

func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

func joinIdentList(columns []string) string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		out = append(out, mssqlIdent(c))
	}
	return strings.Join(out, ", ")
}

// columnType maps logical column types onto SQL Server types. Text columns
// are bounded so they can take part in a UNIQUE index (900 byte key limit).
func columnType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "text":
		return "NVARCHAR(450)"
	case "timestamp", "timestamptz":
		return "DATETIME2"
	default:
		return t
	}
}

func mssqlPrimaryKeyDef(pk storage.PrimaryKeySpec) (string, error) {
	if strings.TrimSpace(pk.Name) == "" {
		return "", fmt.Errorf("mssql: primary key name is empty")
	}
	switch strings.ToLower(strings.TrimSpace(pk.Type)) {
	case "serial", "int identity", "integer identity", "identity":
		return fmt.Sprintf("%s INT IDENTITY(1,1) PRIMARY KEY", mssqlIdent(pk.Name)), nil
	case "bigserial":
		return fmt.Sprintf("%s BIGINT IDENTITY(1,1) PRIMARY KEY", mssqlIdent(pk.Name)), nil
	default:
		return fmt.Sprintf("%s %s PRIMARY KEY", mssqlIdent(pk.Name), pk.Type), nil
	}
}

func mssqlColumnDef(c storage.ColumnSpec) (string, error) {
	if strings.TrimSpace(c.Name) == "" {
		return "", fmt.Errorf("mssql: column name is empty")
	}
	if strings.TrimSpace(c.Type) == "" {
		return "", fmt.Errorf("mssql: column %s type is empty", c.Name)
	}
	def := mssqlIdent(c.Name) + " " + columnType(c.Type)
	if c.Nullable {
		def += " NULL"
	} else {
		def += " NOT NULL"
	}
	return def, nil
}

// buildCreateSQL returns an idempotent CREATE TABLE guarded by OBJECT_ID.
func buildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("mssql: table name is empty")
	}

	var parts []string
	if t.PrimaryKey != nil {
		pkDef, err := mssqlPrimaryKeyDef(*t.PrimaryKey)
		if err != nil {
			return "", err
		}
		parts = append(parts, pkDef)
	}
	for _, c := range t.Columns {
		def, err := mssqlColumnDef(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, def)
	}
	for _, con := range t.Constraints {
		if !strings.EqualFold(con.Kind, "unique") {
			return "", fmt.Errorf("%s unsupported constraint kind: %s", t.Name, con.Kind)
		}
		if len(con.Columns) == 0 {
			return "", fmt.Errorf("%s unique constraint has no columns", t.Name)
		}
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", joinIdentList(con.Columns)))
	}

	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		t.Name, mssqlTableIdent(t.Name), strings.Join(parts, ", "),
	), nil
}

// buildMergeSQL builds a single-row upsert:
//
//	MERGE INTO t WITH (HOLDLOCK) AS tgt
//	USING (SELECT @p1 AS c1, ...) AS src ON tgt.key = src.key
//	WHEN MATCHED THEN UPDATE SET ...
//	WHEN NOT MATCHED THEN INSERT (...) VALUES (...);
//
// Only updateCols are overwritten when the key exists.
func buildMergeSQL(table string, columns, updateCols []string, keyCol string) string {
	var b strings.Builder
	b.WriteString("MERGE INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" WITH (HOLDLOCK) AS tgt USING (SELECT ")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "@p%d AS %s", i+1, mssqlIdent(c))
	}
	b.WriteString(") AS src ON tgt.")
	b.WriteString(mssqlIdent(keyCol))
	b.WriteString(" = src.")
	b.WriteString(mssqlIdent(keyCol))

	b.WriteString(" WHEN MATCHED THEN UPDATE SET ")
	for i, c := range updateCols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("tgt.")
		b.WriteString(mssqlIdent(c))
		b.WriteString(" = src.")
		b.WriteString(mssqlIdent(c))
	}

	b.WriteString(" WHEN NOT MATCHED THEN INSERT (")
	b.WriteString(joinIdentList(columns))
	b.WriteString(") VALUES (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("src.")
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(");")
	return b.String()
}
