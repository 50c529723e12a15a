package rewrite

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// walkExprChildren enumerates the direct children of an expression node,
// reporting nested statements (sublink bodies) separately from plain child
// expressions. The handled kinds are the expression containers the rewriter
// itself produces plus the common containers found in hand-written SQL;
// anything else has no children to report and passes through untouched.
// Children may be nil; callbacks are expected to tolerate that.
func walkExprChildren(node *pg_query.Node, expr func(*pg_query.Node), stmt func(*pg_query.Node)) {
	if node == nil {
		return
	}

	switch n := node.Node.(type) {
	case *pg_query.Node_SubLink:
		expr(n.SubLink.Testexpr)
		stmt(n.SubLink.Subselect)
	case *pg_query.Node_BoolExpr:
		for _, arg := range n.BoolExpr.Args {
			expr(arg)
		}
	case *pg_query.Node_AExpr:
		expr(n.AExpr.Lexpr)
		expr(n.AExpr.Rexpr)
	case *pg_query.Node_ResTarget:
		expr(n.ResTarget.Val)
	case *pg_query.Node_TypeCast:
		expr(n.TypeCast.Arg)
	case *pg_query.Node_FuncCall:
		for _, arg := range n.FuncCall.Args {
			expr(arg)
		}
		for _, ord := range n.FuncCall.AggOrder {
			expr(ord)
		}
		expr(n.FuncCall.AggFilter)
	case *pg_query.Node_MinMaxExpr:
		for _, arg := range n.MinMaxExpr.Args {
			expr(arg)
		}
	case *pg_query.Node_CoalesceExpr:
		for _, arg := range n.CoalesceExpr.Args {
			expr(arg)
		}
	case *pg_query.Node_CaseExpr:
		expr(n.CaseExpr.Arg)
		for _, when := range n.CaseExpr.Args {
			expr(when)
		}
		expr(n.CaseExpr.Defresult)
	case *pg_query.Node_CaseWhen:
		expr(n.CaseWhen.Expr)
		expr(n.CaseWhen.Result)
	case *pg_query.Node_NullTest:
		expr(n.NullTest.Arg)
	case *pg_query.Node_RowExpr:
		for _, arg := range n.RowExpr.Args {
			expr(arg)
		}
	case *pg_query.Node_SortBy:
		expr(n.SortBy.Node)
	case *pg_query.Node_List:
		for _, item := range n.List.Items {
			expr(item)
		}
	}
}
