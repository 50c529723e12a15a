package rewrite

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/rowmeta/rowmeta/internal/domain"
)

// injectNode finds select bodies in a statement node and prepends the
// meta-column targets. Non-SELECT statements are left untouched.
func injectNode(node *pg_query.Node, names domain.Names, ctes cteScope) {
	if node == nil {
		return
	}
	if n, ok := node.Node.(*pg_query.Node_SelectStmt); ok {
		injectSelect(n.SelectStmt, names, ctes)
	}
}

// injectSelect rewrites one select body and every body nested beneath it.
// Nested bodies are rewritten first so a consumer always reads the already
// injected outputs of its derived tables; an outer select over a derived
// table then sees meta-columns exactly as if it read a base table.
func injectSelect(sel *pg_query.SelectStmt, names domain.Names, ctes cteScope) {
	if sel == nil {
		return
	}
	scope := ctes.extend(sel.WithClause)

	if sel.WithClause != nil {
		for _, cte := range sel.WithClause.Ctes {
			if c, ok := cte.Node.(*pg_query.Node_CommonTableExpr); ok {
				injectNode(c.CommonTableExpr.Ctequery, names, scope)
			}
		}
	}

	// Set operations: the branches carry the FROM clauses, the combined
	// body has none of its own.
	if sel.Larg != nil {
		injectSelect(sel.Larg, names, scope)
	}
	if sel.Rarg != nil {
		injectSelect(sel.Rarg, names, scope)
	}

	for _, from := range sel.FromClause {
		injectFromItem(from, names, scope)
	}
	for _, target := range sel.TargetList {
		injectExpr(target, names, scope)
	}
	injectExpr(sel.WhereClause, names, scope)
	injectExpr(sel.HavingClause, names, scope)
	for _, g := range sel.GroupClause {
		injectExpr(g, names, scope)
	}
	for _, s := range sel.SortClause {
		injectExpr(s, names, scope)
	}

	// Bodies without a FROM clause are untouched.
	if len(sel.FromClause) == 0 {
		return
	}
	refs := resolveSelectRefs(sel, scope)
	if refs.Len() == 0 {
		return
	}
	grouped := len(sel.GroupClause) > 0
	sel.TargetList = append(metaTargets(refs.Refs(), names, grouped), sel.TargetList...)
}

// injectFromItem recurses into subquery bodies within FROM clause items.
func injectFromItem(node *pg_query.Node, names domain.Names, ctes cteScope) {
	if node == nil {
		return
	}

	switch n := node.Node.(type) {
	case *pg_query.Node_RangeSubselect:
		injectNode(n.RangeSubselect.Subquery, names, ctes)
	case *pg_query.Node_JoinExpr:
		injectFromItem(n.JoinExpr.Larg, names, ctes)
		injectFromItem(n.JoinExpr.Rarg, names, ctes)
		injectExpr(n.JoinExpr.Quals, names, ctes)
	}
}

// injectExpr recurses into subqueries nested in expressions.
func injectExpr(node *pg_query.Node, names domain.Names, ctes cteScope) {
	walkExprChildren(node,
		func(child *pg_query.Node) { injectExpr(child, names, ctes) },
		func(sub *pg_query.Node) { injectNode(sub, names, ctes) },
	)
}
