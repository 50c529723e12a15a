// Package provision creates and tracks the physical schema objects behind
// the meta-columns: per-table identity and revision columns, the shared
// revision sequence, the stamp trigger function, and per-table triggers.
//
// Every object creation is memoized per Provisioner instance, so concurrent
// rewrites issue each DDL statement at most once. A bootstrap step seeds the
// memo from catalog metadata, so objects surviving from earlier runs are
// never re-issued DDL either.
package provision

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"golang.org/x/sync/errgroup"

	"github.com/rowmeta/rowmeta/internal/ddl"
	"github.com/rowmeta/rowmeta/internal/domain"
	"github.com/rowmeta/rowmeta/internal/rewrite"
)

// Querier is the slice of the database client the provisioner needs:
// parameterized catalog queries and literal DDL execution. *sql.DB satisfies
// it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Deps holds dependencies for Provisioner.
type Deps struct {
	DB     Querier
	Names  domain.Names
	Logger *slog.Logger
}

// Provisioner ensures schema objects exist before rewritten SQL that
// references them is handed out. Safe for concurrent use; all methods block
// until the objects they name are usable.
type Provisioner struct {
	db     Querier
	names  domain.Names
	logger *slog.Logger
	cache  *cache
}

var _ rewrite.Provisioner = (*Provisioner)(nil)

// New creates a Provisioner. Empty name fields fall back to defaults.
func New(deps Deps) *Provisioner {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		db:     deps.DB,
		names:  deps.Names.WithDefaults(),
		logger: logger,
		cache:  newCache(),
	}
}

// Names returns the meta-column configuration in effect.
func (p *Provisioner) Names() domain.Names { return p.names }

// ColumnResult reports one ensured meta-column. Created is true when this
// call issued the ALTER TABLE, false when the outcome was memoized from an
// earlier call or seeded from catalog metadata.
type ColumnResult struct {
	Table   string `json:"table"`
	Column  string `json:"column"`
	Created bool   `json:"created"`
}

// TriggerResult reports one ensured stamp trigger.
type TriggerResult struct {
	Table   string `json:"table"`
	Trigger string `json:"trigger"`
	Created bool   `json:"created"`
}

// Result reports everything one ensure pass touched, two columns and one
// trigger per base table in first-appearance order.
type Result struct {
	Columns  []ColumnResult  `json:"columns"`
	Triggers []TriggerResult `json:"triggers"`
}

func columnKey(column, table string) string { return "column:" + column + ":" + table }
func triggerKey(table string) string        { return "trigger:" + table }

// qualify applies the configured default schema to unqualified references.
func (p *Provisioner) qualify(ref domain.TableRef) (string, string) {
	schema := ref.Schema
	if schema == "" {
		schema = p.names.DefaultSchema
	}
	return schema, ref.Name
}

// EnsureColumn guarantees the named meta-column exists on the referenced
// table. Only the configured identity and revision column names are
// accepted. The first call per table and column issues the ALTER TABLE;
// later and concurrent calls share its outcome.
func (p *Provisioner) EnsureColumn(ctx context.Context, ref domain.TableRef, column string) (ColumnResult, error) {
	if ref.Derived {
		return ColumnResult{}, domain.ErrValidation("derived table %q has no schema objects", ref.Name)
	}

	schema, table := p.qualify(ref)
	qualified := schema + "." + table

	var stmt string
	var err error
	switch column {
	case p.names.IdentityColumn:
		stmt, err = ddl.AddIdentityColumn(schema, table, column)
	case p.names.RevisionColumn:
		stmt, err = ddl.AddRevisionColumn(schema, table, column, p.names.SequenceName())
	default:
		return ColumnResult{}, domain.ErrValidation("column %q is not a configured meta-column", column)
	}
	if err != nil {
		return ColumnResult{}, domain.ErrProvisioning(fmt.Sprintf("column %s.%s", qualified, column), err)
	}

	if err := p.bootstrap(ctx); err != nil {
		return ColumnResult{}, err
	}

	created, err := p.cache.do(ctx, columnKey(column, qualified), func(ctx context.Context) error {
		_, execErr := p.db.ExecContext(ctx, stmt)
		return execErr
	})
	if err != nil {
		return ColumnResult{}, domain.ErrProvisioning(fmt.Sprintf("column %s.%s", qualified, column), err)
	}
	if created {
		p.logger.Info("added meta-column", "table", qualified, "column", column)
	}
	return ColumnResult{Table: qualified, Column: column, Created: created}, nil
}

// EnsureTrigger guarantees the stamp trigger exists on the referenced table,
// firing the stamp function before every insert or update.
func (p *Provisioner) EnsureTrigger(ctx context.Context, ref domain.TableRef) (TriggerResult, error) {
	if ref.Derived {
		return TriggerResult{}, domain.ErrValidation("derived table %q has no schema objects", ref.Name)
	}

	schema, table := p.qualify(ref)
	qualified := schema + "." + table

	stmt, err := ddl.CreateStampTrigger(p.names.TriggerName(), schema, table, p.names.StampFunctionName())
	if err != nil {
		return TriggerResult{}, domain.ErrProvisioning("trigger on "+qualified, err)
	}

	if err := p.bootstrap(ctx); err != nil {
		return TriggerResult{}, err
	}

	created, err := p.cache.do(ctx, triggerKey(qualified), func(ctx context.Context) error {
		_, execErr := p.db.ExecContext(ctx, stmt)
		return execErr
	})
	if err != nil {
		return TriggerResult{}, domain.ErrProvisioning("trigger on "+qualified, err)
	}
	if created {
		p.logger.Info("created stamp trigger", "table", qualified, "trigger", p.names.TriggerName())
	}
	return TriggerResult{Table: qualified, Trigger: p.names.TriggerName(), Created: created}, nil
}

// EnsureObjects ensures columns and triggers for every base table referenced
// anywhere in the parsed statements. Satisfies rewrite.Provisioner.
func (p *Provisioner) EnsureObjects(ctx context.Context, stmts []*pg_query.RawStmt) error {
	_, err := p.ensure(ctx, rewrite.BaseTables(stmts))
	return err
}

// EnsureForSQL parses sql and ensures schema objects for every base table it
// references, reporting what was touched.
func (p *Provisioner) EnsureForSQL(ctx context.Context, sqlText string) (*Result, error) {
	if strings.TrimSpace(sqlText) == "" {
		return nil, domain.ErrValidation("sql is required")
	}
	parsed, err := rewrite.ParseSQL(sqlText)
	if err != nil {
		return nil, err
	}
	return p.ensure(ctx, rewrite.BaseTables(parsed.Stmts))
}

func (p *Provisioner) ensure(ctx context.Context, tables []domain.TableRef) (*Result, error) {
	if err := p.bootstrap(ctx); err != nil {
		return nil, err
	}

	res := &Result{
		Columns:  make([]ColumnResult, 2*len(tables)),
		Triggers: make([]TriggerResult, len(tables)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8) // bounded parallelism

	for i := range tables {
		i := i
		ref := tables[i]
		g.Go(func() error {
			col, err := p.EnsureColumn(gctx, ref, p.names.IdentityColumn)
			if err != nil {
				return err
			}
			res.Columns[2*i] = col
			return nil
		})
		g.Go(func() error {
			col, err := p.EnsureColumn(gctx, ref, p.names.RevisionColumn)
			if err != nil {
				return err
			}
			res.Columns[2*i+1] = col
			return nil
		})
		g.Go(func() error {
			trg, err := p.EnsureTrigger(gctx, ref)
			if err != nil {
				return err
			}
			res.Triggers[i] = trg
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.logger.Debug("ensured schema objects", "tables", len(tables))
	return res, nil
}
