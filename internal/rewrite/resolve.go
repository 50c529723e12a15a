package rewrite

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/rowmeta/rowmeta/internal/domain"
)

// cteScope is the set of CTE names visible to a select body. References to
// these names resolve as derived tables, not base relations.
type cteScope map[string]bool

// extend returns a scope that additionally contains the CTE names declared
// by with. The receiver is not modified.
func (s cteScope) extend(with *pg_query.WithClause) cteScope {
	if with == nil || len(with.Ctes) == 0 {
		return s
	}
	next := make(cteScope, len(s)+len(with.Ctes))
	for name := range s {
		next[name] = true
	}
	for _, cte := range with.Ctes {
		if c, ok := cte.Node.(*pg_query.Node_CommonTableExpr); ok {
			next[c.CommonTableExpr.Ctename] = true
		}
	}
	return next
}

// resolveSelectRefs returns the ordered references contributing rows to one
// select body: the tables, derived tables, and CTE references named in its
// FROM clause. Descent stops at nested select bodies; their contents are a
// different scope. Pure, no mutation.
func resolveSelectRefs(sel *pg_query.SelectStmt, ctes cteScope) *domain.RefSet {
	refs := domain.NewRefSet()
	if sel == nil {
		return refs
	}
	scope := ctes.extend(sel.WithClause)
	for _, from := range sel.FromClause {
		collectFromItem(from, scope, refs)
	}
	return refs
}

// collectFromItem resolves one FROM-clause item. Items with no name to
// resolve (table-valued functions, subselects without an alias) are
// silently skipped.
func collectFromItem(node *pg_query.Node, ctes cteScope, refs *domain.RefSet) {
	if node == nil {
		return
	}

	switch n := node.Node.(type) {
	case *pg_query.Node_RangeVar:
		refs.Add(rangeVarRef(n.RangeVar, ctes))
	case *pg_query.Node_JoinExpr:
		collectFromItem(n.JoinExpr.Larg, ctes, refs)
		collectFromItem(n.JoinExpr.Rarg, ctes, refs)
	case *pg_query.Node_RangeSubselect:
		if alias := aliasName(n.RangeSubselect.Alias); alias != "" {
			refs.Add(domain.TableRef{Name: alias, Derived: true})
		}
	case *pg_query.Node_RangeFunction:
		// Table-valued functions carry no identity or revision to read.
	}
}

// rangeVarRef classifies a relation reference. A name matching a CTE in
// scope is a derived reference as long as it is not schema-qualified.
func rangeVarRef(rv *pg_query.RangeVar, ctes cteScope) domain.TableRef {
	alias := aliasName(rv.Alias)
	if rv.Schemaname == "" && ctes[rv.Relname] {
		return domain.TableRef{Name: rv.Relname, Alias: alias, Derived: true}
	}
	return domain.TableRef{Schema: rv.Schemaname, Name: rv.Relname, Alias: alias}
}

func aliasName(a *pg_query.Alias) string {
	if a == nil {
		return ""
	}
	return a.Aliasname
}

// collectBaseTables walks a full parse tree and adds every base relation it
// references, at any depth, to refs. Aliases are dropped so the same table
// joined twice provisions once. Derived tables and CTE references are
// skipped; their bodies are descended into.
func collectBaseTables(node *pg_query.Node, ctes cteScope, refs *domain.RefSet) {
	if node == nil {
		return
	}

	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		collectBaseFromSelect(n.SelectStmt, ctes, refs)
	case *pg_query.Node_InsertStmt:
		ins := n.InsertStmt
		scope := ctes.extend(ins.WithClause)
		addBaseRelation(ins.Relation, scope, refs)
		collectBaseTables(ins.SelectStmt, scope, refs)
		for _, t := range ins.ReturningList {
			collectBaseFromExpr(t, scope, refs)
		}
		collectCteBodies(ins.WithClause, scope, refs)
	case *pg_query.Node_UpdateStmt:
		upd := n.UpdateStmt
		scope := ctes.extend(upd.WithClause)
		addBaseRelation(upd.Relation, scope, refs)
		for _, from := range upd.FromClause {
			collectBaseFromItem(from, scope, refs)
		}
		collectBaseFromExpr(upd.WhereClause, scope, refs)
		collectCteBodies(upd.WithClause, scope, refs)
	case *pg_query.Node_DeleteStmt:
		del := n.DeleteStmt
		scope := ctes.extend(del.WithClause)
		addBaseRelation(del.Relation, scope, refs)
		for _, using := range del.UsingClause {
			collectBaseFromItem(using, scope, refs)
		}
		collectBaseFromExpr(del.WhereClause, scope, refs)
		collectCteBodies(del.WithClause, scope, refs)
	}
}

// collectBaseFromSelect handles one select body, including set-operation
// branches and its WITH clause.
func collectBaseFromSelect(sel *pg_query.SelectStmt, ctes cteScope, refs *domain.RefSet) {
	if sel == nil {
		return
	}
	scope := ctes.extend(sel.WithClause)

	if sel.Larg != nil {
		collectBaseFromSelect(sel.Larg, scope, refs)
	}
	if sel.Rarg != nil {
		collectBaseFromSelect(sel.Rarg, scope, refs)
	}

	for _, from := range sel.FromClause {
		collectBaseFromItem(from, scope, refs)
	}
	for _, target := range sel.TargetList {
		collectBaseFromExpr(target, scope, refs)
	}
	collectBaseFromExpr(sel.WhereClause, scope, refs)
	collectBaseFromExpr(sel.HavingClause, scope, refs)
	for _, g := range sel.GroupClause {
		collectBaseFromExpr(g, scope, refs)
	}
	for _, s := range sel.SortClause {
		collectBaseFromExpr(s, scope, refs)
	}
	collectBaseFromExpr(sel.LimitOffset, scope, refs)
	collectBaseFromExpr(sel.LimitCount, scope, refs)
	for _, row := range sel.ValuesLists {
		collectBaseFromExpr(row, scope, refs)
	}
	collectCteBodies(sel.WithClause, scope, refs)
}

func collectCteBodies(with *pg_query.WithClause, ctes cteScope, refs *domain.RefSet) {
	if with == nil {
		return
	}
	for _, cte := range with.Ctes {
		if c, ok := cte.Node.(*pg_query.Node_CommonTableExpr); ok {
			collectBaseTables(c.CommonTableExpr.Ctequery, ctes, refs)
		}
	}
}

// collectBaseFromItem handles FROM-clause items in deep mode: base relations
// are added, subquery bodies are descended into.
func collectBaseFromItem(node *pg_query.Node, ctes cteScope, refs *domain.RefSet) {
	if node == nil {
		return
	}

	switch n := node.Node.(type) {
	case *pg_query.Node_RangeVar:
		addBaseRelation(n.RangeVar, ctes, refs)
	case *pg_query.Node_JoinExpr:
		collectBaseFromItem(n.JoinExpr.Larg, ctes, refs)
		collectBaseFromItem(n.JoinExpr.Rarg, ctes, refs)
		collectBaseFromExpr(n.JoinExpr.Quals, ctes, refs)
	case *pg_query.Node_RangeSubselect:
		collectBaseTables(n.RangeSubselect.Subquery, ctes, refs)
	case *pg_query.Node_RangeFunction:
		// Skipped: no physical table to provision.
	}
}

// collectBaseFromExpr walks expression nodes looking for subqueries.
func collectBaseFromExpr(node *pg_query.Node, ctes cteScope, refs *domain.RefSet) {
	walkExprChildren(node,
		func(child *pg_query.Node) { collectBaseFromExpr(child, ctes, refs) },
		func(sub *pg_query.Node) { collectBaseTables(sub, ctes, refs) },
	)
}

// addBaseRelation records a base relation unless its name is shadowed by a
// CTE in scope. Aliases are intentionally dropped from the recorded ref.
func addBaseRelation(rv *pg_query.RangeVar, ctes cteScope, refs *domain.RefSet) {
	if rv == nil || rv.Relname == "" {
		return
	}
	if rv.Schemaname == "" && ctes[rv.Relname] {
		return
	}
	refs.Add(domain.TableRef{Schema: rv.Schemaname, Name: rv.Relname})
}
