package postgres

import (
	"fmt"
	"strings"

	"collectwise/internal/storage"
)

func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// pgTable quotes a table name, quoting schema and table separately when the
// name is schema-qualified.
func pgTable(name string) string {
	schema, table := splitQualifiedName(name)
	if schema == "" {
		return pgIdent(table)
	}
	return pgIdent(schema) + "." + pgIdent(table)
}

func joinIdentList(columns []string) string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		out = append(out, pgIdent(c))
	}
	return strings.Join(out, ", ")
}

// columnType maps logical column types onto Postgres types.
func columnType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "text":
		return "TEXT"
	case "timestamp", "timestamptz":
		return "TIMESTAMPTZ"
	default:
		return t
	}
}

// buildColumnDef renders a single column definition.
func buildColumnDef(c storage.ColumnSpec) (string, error) {
	name := strings.TrimSpace(c.Name)
	typ := strings.TrimSpace(c.Type)
	if name == "" || typ == "" {
		return "", fmt.Errorf("column name/type must be set")
	}

	def := pgIdent(name) + " " + columnType(typ)
	if !c.Nullable {
		def += " NOT NULL"
	}
	return def, nil
}

// buildConstraints generates table-level constraints. Only UNIQUE is
// supported.
func buildConstraints(t storage.TableSpec) ([]string, error) {
	out := make([]string, 0, len(t.Constraints))
	for _, c := range t.Constraints {
		switch strings.ToLower(strings.TrimSpace(c.Kind)) {
		case "unique":
			if len(c.Columns) == 0 {
				return nil, fmt.Errorf("table %s: unique constraint requires columns", t.Name)
			}
			out = append(out, fmt.Sprintf("UNIQUE (%s)", joinIdentList(c.Columns)))
		default:
			return nil, fmt.Errorf("table %s: unsupported constraint kind %q", t.Name, c.Kind)
		}
	}
	return out, nil
}

// splitQualifiedName splits "schema.table" into its parts. Anything without
// exactly one dot is treated as unqualified.
func splitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

// buildCreateSQL returns the optional CREATE SCHEMA and the CREATE TABLE
// statements for t.
func buildCreateSQL(t storage.TableSpec) (schemaSQL, tableSQL string, err error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", "", fmt.Errorf("table name is empty")
	}
	if schema, _ := splitQualifiedName(t.Name); schema != "" {
		schemaSQL = fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, pgIdent(schema))
	}

	var defs []string
	if t.PrimaryKey != nil {
		pk := strings.TrimSpace(t.PrimaryKey.Name)
		pkType := strings.TrimSpace(t.PrimaryKey.Type)
		if pk == "" || pkType == "" {
			return "", "", fmt.Errorf("table %s: primary key name and type are required", t.Name)
		}
		defs = append(defs, fmt.Sprintf(`%s %s PRIMARY KEY`, pgIdent(pk), pkType))
	}
	for _, c := range t.Columns {
		def, err := buildColumnDef(c)
		if err != nil {
			return "", "", fmt.Errorf("table %s: %w", t.Name, err)
		}
		defs = append(defs, def)
	}
	cons, err := buildConstraints(t)
	if err != nil {
		return "", "", err
	}
	defs = append(defs, cons...)

	tableSQL = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s);`, pgTable(t.Name), strings.Join(defs, ", "))
	return schemaSQL, tableSQL, nil
}

// buildUpsertSQL builds a single-row INSERT ... ON CONFLICT DO UPDATE with
// $n placeholders. Only updateCols are overwritten on conflict.
func buildUpsertSQL(table string, columns, updateCols []string, conflictCol string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgTable(table))
	b.WriteString(" (")
	b.WriteString(joinIdentList(columns))
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", i+1)
	}
	b.WriteString(") ON CONFLICT (")
	b.WriteString(pgIdent(conflictCol))
	b.WriteString(") DO UPDATE SET ")
	for i, c := range updateCols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
		b.WriteString(" = EXCLUDED.")
		b.WriteString(pgIdent(c))
	}
	return b.String()
}
