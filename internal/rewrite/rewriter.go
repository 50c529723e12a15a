// Package rewrite rewrites PostgreSQL SELECT statements so every result row
// carries a synthetic per-row identity and a monotonic revision column.
//
// It parses statements with the PostgreSQL parser (pg_query_go), resolves
// the table references in every select body, injects composite
// identity/revision expressions ahead of the user-selected columns, and
// deparses back to SQL. Schema objects backing the meta-columns are ensured
// by a Provisioner before the rewritten SQL is returned.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	pgparser "github.com/pganalyze/pg_query_go/v6/parser"

	"github.com/rowmeta/rowmeta/internal/domain"
)

// Result is the outcome of one rewrite: the new SQL text and the resolved
// top-level table references of the input.
type Result struct {
	SQL    string            `json:"sql"`
	Tables []domain.TableRef `json:"tables"`
}

// Provisioner ensures the schema objects behind the meta-columns exist for
// every base table in the parsed statements. Implementations must not
// return until all objects are usable; the rewritten SQL is only valid
// afterwards.
type Provisioner interface {
	EnsureObjects(ctx context.Context, stmts []*pg_query.RawStmt) error
}

// Deps carries the rewriter's dependencies.
type Deps struct {
	Names       domain.Names
	Provisioner Provisioner // nil skips provisioning (offline rewrite)
	Logger      *slog.Logger
}

// Rewriter is the rewrite facade. Safe for concurrent use.
type Rewriter struct {
	names  domain.Names
	prov   Provisioner
	logger *slog.Logger
}

// NewRewriter creates a Rewriter. Empty name fields fall back to defaults.
func NewRewriter(deps Deps) *Rewriter {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Rewriter{
		names:  deps.Names.WithDefaults(),
		prov:   deps.Provisioner,
		logger: logger,
	}
}

// Names returns the meta-column configuration in effect.
func (r *Rewriter) Names() domain.Names { return r.names }

// Rewrite parses sql, ensures schema objects for every referenced base
// table, injects the meta-columns into every select body, and returns the
// deparsed SQL together with the resolved top-level table references.
// Statements without a FROM clause, and non-SELECT statements, pass through
// unchanged.
func (r *Rewriter) Rewrite(ctx context.Context, sql string) (*Result, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, domain.ErrValidation("sql is required")
	}

	parsed, err := ParseSQL(sql)
	if err != nil {
		return nil, err
	}

	// Provisioning must complete before the rewritten SQL can be handed
	// out; the injected expressions reference columns it creates.
	if r.prov != nil {
		if err := r.prov.EnsureObjects(ctx, parsed.Stmts); err != nil {
			return nil, err
		}
	}

	tables := topLevelTables(parsed.Stmts)
	for _, raw := range parsed.Stmts {
		if raw != nil {
			injectNode(raw.Stmt, r.names, nil)
		}
	}

	out, err := pg_query.Deparse(parsed)
	if err != nil {
		return nil, fmt.Errorf("deparse rewritten statement: %w", err)
	}

	r.logger.Debug("rewrote statement", "statements", len(parsed.Stmts), "tables", len(tables))
	return &Result{SQL: out, Tables: tables}, nil
}

// ParseSQL parses sql into a statement tree. Parser rejections surface as a
// domain.ParseError carrying the parser's diagnostic verbatim.
func ParseSQL(sql string) (*pg_query.ParseResult, error) {
	parsed, err := pg_query.Parse(sql)
	if err != nil {
		var pgErr *pgparser.Error
		if errors.As(err, &pgErr) {
			return nil, domain.ErrParse(pgErr.Message, pgErr.Cursorpos)
		}
		return nil, domain.ErrParse(err.Error(), 0)
	}
	return parsed, nil
}

// BaseTables returns every base relation referenced anywhere in the parsed
// statements, deduplicated in first-appearance order with aliases dropped.
// CTE names and derived tables are excluded; their bodies are descended
// into.
func BaseTables(stmts []*pg_query.RawStmt) []domain.TableRef {
	refs := domain.NewRefSet()
	for _, raw := range stmts {
		if raw != nil {
			collectBaseTables(raw.Stmt, nil, refs)
		}
	}
	return refs.Refs()
}

// topLevelTables merges the outermost FROM-clause references of every
// statement, descending through set-operation branches.
func topLevelTables(stmts []*pg_query.RawStmt) []domain.TableRef {
	refs := domain.NewRefSet()
	for _, raw := range stmts {
		if raw == nil || raw.Stmt == nil {
			continue
		}
		if n, ok := raw.Stmt.Node.(*pg_query.Node_SelectStmt); ok {
			addTopLevelRefs(n.SelectStmt, nil, refs)
		}
	}
	return refs.Refs()
}

func addTopLevelRefs(sel *pg_query.SelectStmt, ctes cteScope, refs *domain.RefSet) {
	if sel == nil {
		return
	}
	scope := ctes.extend(sel.WithClause)
	if sel.Larg != nil || sel.Rarg != nil {
		addTopLevelRefs(sel.Larg, scope, refs)
		addTopLevelRefs(sel.Rarg, scope, refs)
		return
	}
	for _, ref := range resolveSelectRefs(sel, scope).Refs() {
		refs.Add(ref)
	}
}
