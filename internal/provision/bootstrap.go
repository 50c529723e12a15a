package provision

import (
	"context"
	"fmt"

	"github.com/rowmeta/rowmeta/internal/ddl"
	"github.com/rowmeta/rowmeta/internal/domain"
)

const bootstrapKey = "bootstrap"

// columnSeedQuery lists every user table already bearing a column with the
// configured name, so restarts never re-issue ALTER TABLE for them.
const columnSeedQuery = `SELECT c.table_schema, c.table_name
FROM information_schema.columns c
WHERE c.column_name = $1
  AND c.table_schema NOT IN ('pg_catalog', 'information_schema')`

// triggerSeedQuery lists every table already carrying the stamp trigger.
// information_schema.triggers emits one row per firing event, hence DISTINCT.
const triggerSeedQuery = `SELECT DISTINCT t.event_object_schema, t.event_object_table
FROM information_schema.triggers t
WHERE t.trigger_name = $1`

// bootstrap runs the once-per-instance setup: seed the memo from catalog
// metadata, then create the shared revision sequence and the stamp function.
// Memoized like every other object; a failed bootstrap stays failed until
// the instance is replaced.
func (p *Provisioner) bootstrap(ctx context.Context) error {
	_, err := p.cache.do(ctx, bootstrapKey, p.runBootstrap)
	if err != nil {
		return domain.ErrProvisioning("bootstrap", err)
	}
	return nil
}

func (p *Provisioner) runBootstrap(ctx context.Context) error {
	for _, column := range []string{p.names.IdentityColumn, p.names.RevisionColumn} {
		if err := p.seedColumns(ctx, column); err != nil {
			return err
		}
	}
	if err := p.seedTriggers(ctx); err != nil {
		return err
	}

	stmt, err := ddl.CreateRevisionSequence(p.names.SequenceName())
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create sequence %s: %w", p.names.SequenceName(), err)
	}

	stmt, err = ddl.CreateStampFunction(p.names.StampFunctionName(), p.names.RevisionColumn, p.names.SequenceName())
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create stamp function %s: %w", p.names.StampFunctionName(), err)
	}

	p.logger.Info("provisioner bootstrap complete",
		"sequence", p.names.SequenceName(),
		"function", p.names.StampFunctionName(),
	)
	return nil
}

func (p *Provisioner) seedColumns(ctx context.Context, column string) error {
	rows, err := p.db.QueryContext(ctx, columnSeedQuery, column)
	if err != nil {
		return fmt.Errorf("query existing %s columns: %w", column, err)
	}
	defer func() { _ = rows.Close() }()

	count := 0
	for rows.Next() {
		var schema, table string
		if err := rows.Scan(&schema, &table); err != nil {
			return fmt.Errorf("scan column metadata: %w", err)
		}
		p.cache.seed(columnKey(column, schema+"."+table))
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate column metadata: %w", err)
	}

	if count > 0 {
		p.logger.Debug("seeded existing meta-columns", "column", column, "tables", count)
	}
	return nil
}

func (p *Provisioner) seedTriggers(ctx context.Context) error {
	rows, err := p.db.QueryContext(ctx, triggerSeedQuery, p.names.TriggerName())
	if err != nil {
		return fmt.Errorf("query existing triggers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	count := 0
	for rows.Next() {
		var schema, table string
		if err := rows.Scan(&schema, &table); err != nil {
			return fmt.Errorf("scan trigger metadata: %w", err)
		}
		p.cache.seed(triggerKey(schema + "." + table))
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate trigger metadata: %w", err)
	}

	if count > 0 {
		p.logger.Debug("seeded existing stamp triggers", "trigger", p.names.TriggerName(), "tables", count)
	}
	return nil
}
