package rewrite

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/rowmeta/rowmeta/internal/domain"
)

// metaTargets synthesizes the two target entries prepended to a select body:
// the composite identity first, then the composite revision, named with the
// configured column names.
func metaTargets(refs []domain.TableRef, names domain.Names, grouped bool) []*pg_query.Node {
	return []*pg_query.Node{
		makeResTarget(names.IdentityColumn, identityExpr(refs, names, grouped)),
		makeResTarget(names.RevisionColumn, revisionExpr(refs, names, grouped)),
	}
}

// identityExpr builds the composite identity for one output row: every
// reference contributes its identity column (base tables) or its already
// synthesized identity output (derived tables), joined with ':' separators.
//
// Grouped bodies fold the contributing rows of each reference first:
// md5(string_agg(CAST(col AS text), ',' ORDER BY CAST(col AS text))). The
// ORDER BY makes the fold independent of row arrival order, so identical
// groups hash identically across plans.
func identityExpr(refs []domain.TableRef, names domain.Names, grouped bool) *pg_query.Node {
	parts := make([]*pg_query.Node, 0, len(refs))
	for _, ref := range refs {
		if grouped {
			parts = append(parts, identityFold(ref, names.IdentityColumn))
		} else {
			parts = append(parts, columnRead(ref, names.IdentityColumn))
		}
	}
	return joinWithSeparator(parts)
}

// revisionExpr builds the composite revision: the maximum revision across
// all contributing references. Grouped bodies take max over each
// reference's rows first, then the greatest across references. Folding in
// the other order would be wrong for multi-table grouped queries.
func revisionExpr(refs []domain.TableRef, names domain.Names, grouped bool) *pg_query.Node {
	args := make([]*pg_query.Node, 0, len(refs))
	for _, ref := range refs {
		col := columnRead(ref, names.RevisionColumn)
		if grouped {
			col = makeFuncCall("max", col)
		}
		args = append(args, col)
	}
	if len(args) == 1 {
		return args[0]
	}
	return makeGreatest(args)
}

// columnRead builds a qualified read of column from ref.
func columnRead(ref domain.TableRef, column string) *pg_query.Node {
	parts := append(ref.ColumnQualifier(), column)
	return makeColumnRef(parts...)
}

// identityFold builds the order-independent per-reference identity fold
// used under grouping.
func identityFold(ref domain.TableRef, column string) *pg_query.Node {
	agg := makeAggCall("string_agg",
		[]*pg_query.Node{makeTextCast(columnRead(ref, column)), makeStringConst(",")},
		makeTextCast(columnRead(ref, column)),
	)
	return makeFuncCall("md5", agg)
}

// joinWithSeparator concatenates the parts with a ':' literal between
// adjacent entries. A single part is returned as-is; empty input yields nil.
func joinWithSeparator(parts []*pg_query.Node) *pg_query.Node {
	if len(parts) == 0 {
		return nil
	}
	acc := parts[0]
	for _, part := range parts[1:] {
		acc = makeConcat(makeConcat(acc, makeStringConst(":")), part)
	}
	return acc
}
