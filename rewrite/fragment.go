// Package rewrite patches known-problematic shapes in the SQL that the
// upstream OLAP translator generates, immediately before execution.
//
// The rewriter knows the line-oriented layout of the generated queries
// and fixes a small catalogue of problems:
//
//   - sum() or count(distinct) on a column of type hll is replaced by a
//     call to hll_cardinality(hll_union_agg(...))
//
// It is not a SQL parser. Lines that match no known shape pass through
// untouched, and any internal failure degrades to returning the input
// query unchanged.
package rewrite

// FragmentType classifies one physical line of a generated query.
type FragmentType int

const (
	// FragmentNone marks a line with no recognised shape. Plain column
	// selections and most other lines stay unclassified.
	FragmentNone FragmentType = iota

	FragmentSelectKeyword
	FragmentFromKeyword
	FragmentWhereKeyword
	FragmentAndKeyword
	FragmentGroupByKeyword
	FragmentOrderByKeyword

	// FragmentTable is a from-list entry: "schema"."table" as "alias".
	FragmentTable

	// FragmentSelectAggregation is an aggregated select expression:
	// agg("alias"."column") as "resultAlias".
	FragmentSelectAggregation

	// FragmentJoinCondition is an equality between two aliased columns.
	FragmentJoinCondition

	// FragmentCondition is an equality or membership test between an
	// aliased column and literals.
	FragmentCondition
)

func (t FragmentType) String() string {
	switch t {
	case FragmentNone:
		return "none"
	case FragmentSelectKeyword:
		return "select"
	case FragmentFromKeyword:
		return "from"
	case FragmentWhereKeyword:
		return "where"
	case FragmentAndKeyword:
		return "and"
	case FragmentGroupByKeyword:
		return "group by"
	case FragmentOrderByKeyword:
		return "order by"
	case FragmentTable:
		return "table"
	case FragmentSelectAggregation:
		return "select aggregation"
	case FragmentJoinCondition:
		return "join condition"
	case FragmentCondition:
		return "condition"
	default:
		return "unknown"
	}
}

// Fragment is one classified physical line of the query being rewritten.
// Text is the original line and is never modified; NewText is set at most
// once by the rule engine and wins during reassembly. The type-specific
// fields are populated only when Type matches.
type Fragment struct {
	Text    string
	NewText string
	Type    FragmentType

	// FragmentTable
	Schema string
	Table  string
	Alias  string

	// FragmentSelectAggregation, FragmentJoinCondition, FragmentCondition
	TableAlias string
	Column     string

	// FragmentSelectAggregation
	AggFunc     string
	ResultAlias string
	HasNext     bool // the original line ended with a comma

	// FragmentJoinCondition
	JoinedAlias  string
	JoinedColumn string
}

// Rendered returns the text this fragment contributes to the rewritten
// query: the replacement when one was set, the original line otherwise.
func (f *Fragment) Rendered() string {
	if f.NewText != "" {
		return f.NewText
	}
	return f.Text
}
