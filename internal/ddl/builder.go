// Package ddl builds the PostgreSQL DDL statements that back the meta-columns:
// identity/revision columns, the shared revision sequence, the stamp trigger
// function, and the per-table triggers. Object names owned by configuration
// (columns, sequence, function, trigger) are validated; schema and table
// names come from parsed SQL and may be any identifier, so they are quoted
// as-is. All emitted statements are idempotent.
package ddl

import (
	"fmt"
)

// AddIdentityColumn returns DDL adding the identity column to a table:
//
//	ALTER TABLE "schema"."table" ADD COLUMN IF NOT EXISTS "column" BIGSERIAL
//
// BIGSERIAL gives each table its own backing sequence; identity values only
// need to be unique per table.
func AddIdentityColumn(schema, table, column string) (string, error) {
	if err := requireTable(schema, table); err != nil {
		return "", err
	}
	if err := ValidateIdentifier(column); err != nil {
		return "", fmt.Errorf("invalid column name: %w", err)
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s BIGSERIAL",
		QualifiedName(schema, table),
		QuoteIdentifier(column),
	), nil
}

// AddRevisionColumn returns DDL adding the revision column to a table,
// defaulting from the shared sequence so existing and freshly inserted rows
// are stamped even before the trigger fires:
//
//	ALTER TABLE "schema"."table" ADD COLUMN IF NOT EXISTS "column" BIGINT NOT NULL DEFAULT nextval('"sequence"')
func AddRevisionColumn(schema, table, column, sequence string) (string, error) {
	if err := requireTable(schema, table); err != nil {
		return "", err
	}
	if err := ValidateIdentifier(column); err != nil {
		return "", fmt.Errorf("invalid column name: %w", err)
	}
	if err := ValidateIdentifier(sequence); err != nil {
		return "", fmt.Errorf("invalid sequence name: %w", err)
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s BIGINT NOT NULL DEFAULT nextval(%s)",
		QualifiedName(schema, table),
		QuoteIdentifier(column),
		QuoteLiteral(QuoteIdentifier(sequence)),
	), nil
}

// CreateRevisionSequence returns DDL creating the shared revision sequence:
//
//	CREATE SEQUENCE IF NOT EXISTS "name"
func CreateRevisionSequence(name string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid sequence name: %w", err)
	}
	return fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %s", QuoteIdentifier(name)), nil
}

// CreateStampFunction returns DDL creating (or replacing) the plpgsql trigger
// function that stamps the revision column from the shared sequence on every
// insert or update.
func CreateStampFunction(name, column, sequence string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid function name: %w", err)
	}
	if err := ValidateIdentifier(column); err != nil {
		return "", fmt.Errorf("invalid column name: %w", err)
	}
	if err := ValidateIdentifier(sequence); err != nil {
		return "", fmt.Errorf("invalid sequence name: %w", err)
	}
	return fmt.Sprintf(`CREATE OR REPLACE FUNCTION %s() RETURNS trigger AS $stamp$
BEGIN
	NEW.%s := nextval(%s);
	RETURN NEW;
END;
$stamp$ LANGUAGE plpgsql`,
		QuoteIdentifier(name),
		QuoteIdentifier(column),
		QuoteLiteral(QuoteIdentifier(sequence)),
	), nil
}

// CreateStampTrigger returns DDL creating (or replacing) the per-table
// before-insert-or-update trigger that invokes the stamp function.
// CREATE OR REPLACE TRIGGER requires PostgreSQL 14.
func CreateStampTrigger(trigger, schema, table, function string) (string, error) {
	if err := requireTable(schema, table); err != nil {
		return "", err
	}
	if err := ValidateIdentifier(trigger); err != nil {
		return "", fmt.Errorf("invalid trigger name: %w", err)
	}
	if err := ValidateIdentifier(function); err != nil {
		return "", fmt.Errorf("invalid function name: %w", err)
	}
	return fmt.Sprintf("CREATE OR REPLACE TRIGGER %s BEFORE INSERT OR UPDATE ON %s FOR EACH ROW EXECUTE FUNCTION %s()",
		QuoteIdentifier(trigger),
		QualifiedName(schema, table),
		QuoteIdentifier(function),
	), nil
}

func requireTable(schema, table string) error {
	if schema == "" {
		return fmt.Errorf("schema is required")
	}
	if table == "" {
		return fmt.Errorf("table name is required")
	}
	return nil
}
