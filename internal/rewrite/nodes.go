package rewrite

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// makeStringNode creates a string node for use in identifier lists.
func makeStringNode(value string) *pg_query.Node {
	return &pg_query.Node{
		Node: &pg_query.Node_String_{
			String_: &pg_query.String{Sval: value},
		},
	}
}

// makeColumnRef creates a column reference from identifier parts,
// e.g. ("u", "__identity__") becomes u.__identity__.
func makeColumnRef(parts ...string) *pg_query.Node {
	fields := make([]*pg_query.Node, 0, len(parts))
	for _, p := range parts {
		fields = append(fields, makeStringNode(p))
	}
	return &pg_query.Node{
		Node: &pg_query.Node_ColumnRef{
			ColumnRef: &pg_query.ColumnRef{Fields: fields},
		},
	}
}

// makeStringConst creates a string literal constant node.
func makeStringConst(value string) *pg_query.Node {
	return &pg_query.Node{
		Node: &pg_query.Node_AConst{
			AConst: &pg_query.A_Const{
				Val: &pg_query.A_Const_Sval{
					Sval: &pg_query.String{Sval: value},
				},
			},
		},
	}
}

// makeIntegerConst creates an integer literal constant node.
func makeIntegerConst(value int32) *pg_query.Node {
	return &pg_query.Node{
		Node: &pg_query.Node_AConst{
			AConst: &pg_query.A_Const{
				Val: &pg_query.A_Const_Ival{
					Ival: &pg_query.Integer{Ival: value},
				},
			},
		},
	}
}

// makeFloatConst creates a float literal constant node. The value keeps its
// textual form to avoid round-trip precision loss.
func makeFloatConst(value string) *pg_query.Node {
	return &pg_query.Node{
		Node: &pg_query.Node_AConst{
			AConst: &pg_query.A_Const{
				Val: &pg_query.A_Const_Fval{
					Fval: &pg_query.Float{Fval: value},
				},
			},
		},
	}
}

// makeResTarget wraps an expression as a named select-list target.
func makeResTarget(name string, val *pg_query.Node) *pg_query.Node {
	return &pg_query.Node{
		Node: &pg_query.Node_ResTarget{
			ResTarget: &pg_query.ResTarget{Name: name, Val: val},
		},
	}
}

// makeFuncCall creates a function call node with positional arguments.
func makeFuncCall(name string, args ...*pg_query.Node) *pg_query.Node {
	return &pg_query.Node{
		Node: &pg_query.Node_FuncCall{
			FuncCall: &pg_query.FuncCall{
				Funcname:   []*pg_query.Node{makeStringNode(name)},
				Args:       args,
				Funcformat: pg_query.CoercionForm_COERCE_EXPLICIT_CALL,
			},
		},
	}
}

// makeAggCall creates an aggregate call with an ORDER BY clause inside the
// argument list, e.g. string_agg(x, ',' ORDER BY x).
func makeAggCall(name string, args []*pg_query.Node, orderBy *pg_query.Node) *pg_query.Node {
	return &pg_query.Node{
		Node: &pg_query.Node_FuncCall{
			FuncCall: &pg_query.FuncCall{
				Funcname:   []*pg_query.Node{makeStringNode(name)},
				Args:       args,
				AggOrder:   []*pg_query.Node{makeSortBy(orderBy)},
				Funcformat: pg_query.CoercionForm_COERCE_EXPLICIT_CALL,
			},
		},
	}
}

// makeSortBy wraps an expression as a sort item with default direction and
// nulls ordering.
func makeSortBy(expr *pg_query.Node) *pg_query.Node {
	return &pg_query.Node{
		Node: &pg_query.Node_SortBy{
			SortBy: &pg_query.SortBy{
				Node:        expr,
				SortbyDir:   pg_query.SortByDir_SORTBY_DEFAULT,
				SortbyNulls: pg_query.SortByNulls_SORTBY_NULLS_DEFAULT,
			},
		},
	}
}

// makeTextCast wraps an expression in a cast to text.
func makeTextCast(expr *pg_query.Node) *pg_query.Node {
	return &pg_query.Node{
		Node: &pg_query.Node_TypeCast{
			TypeCast: &pg_query.TypeCast{
				Arg: expr,
				TypeName: &pg_query.TypeName{
					Names:   []*pg_query.Node{makeStringNode("text")},
					Typemod: -1,
				},
			},
		},
	}
}

// makeConcat combines two expressions with the || operator.
func makeConcat(left, right *pg_query.Node) *pg_query.Node {
	return &pg_query.Node{
		Node: &pg_query.Node_AExpr{
			AExpr: &pg_query.A_Expr{
				Kind:  pg_query.A_Expr_Kind_AEXPR_OP,
				Name:  []*pg_query.Node{makeStringNode("||")},
				Lexpr: left,
				Rexpr: right,
			},
		},
	}
}

// makeGreatest creates a GREATEST(...) expression over the given arguments.
func makeGreatest(args []*pg_query.Node) *pg_query.Node {
	return &pg_query.Node{
		Node: &pg_query.Node_MinMaxExpr{
			MinMaxExpr: &pg_query.MinMaxExpr{
				Op:   pg_query.MinMaxOp_IS_GREATEST,
				Args: args,
			},
		},
	}
}
