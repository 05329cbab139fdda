package rewrite

import "strings"

// Aggregation prefixes that break on hll columns. The parser captures
// everything up to the opening quote of the column reference, so these
// are literal prefix texts, not function names.
const (
	aggCountDistinct = "count(distinct"
	aggSum           = "sum("
)

// replaceHllAggregations rewrites sum() and count(distinct) expressions
// over columns of type hll into hll_cardinality(hll_union_agg(...)),
// keeping the original result alias and trailing comma. Reports whether
// any fragment was rewritten.
//
// TODO: second rule, constraining the fact table from a condition on a
// joined dimension table to help the execution planner. The metadata
// store already carries the dimension table and key range caches for it.
func replaceHllAggregations(p *parseResult, hllColumns map[string]struct{}) bool {

	modified := false

	for _, fragment := range p.fragments {
		if fragment.Type != FragmentSelectAggregation {
			continue
		}
		if fragment.AggFunc != aggCountDistinct && fragment.AggFunc != aggSum {
			continue
		}

		// Resolve the owning table. An alias without a from-clause table
		// behind it is skipped, not an error.
		table := p.aliases[fragment.TableAlias]
		if table == nil {
			continue
		}

		fullName := strings.ToLower(table.Schema + "." + table.Table + "." + fragment.Column)
		if _, ok := hllColumns[fullName]; !ok {
			continue
		}

		comma := ""
		if fragment.HasNext {
			comma = ","
		}
		fragment.NewText = `    hll_cardinality(hll_union_agg(` +
			`"` + fragment.TableAlias + `"."` + fragment.Column + `"` +
			`)) as "` + fragment.ResultAlias + `"` + comma
		modified = true
	}

	return modified
}
