package rewrite

import (
	"strings"
	"testing"
)

func TestParseQueryClassification(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []FragmentType
	}{
		{
			name: "keywords and plain lines",
			query: "select\n" +
				`    "t1"."city" as "c0",` + "\n" +
				"from\n" +
				`    "public"."events" as "t1"` + "\n" +
				"group by\n" +
				`    "t1"."city"` + "\n" +
				"order by\n" +
				`    "t1"."city" ASC`,
			want: []FragmentType{
				FragmentSelectKeyword,
				FragmentNone,
				FragmentFromKeyword,
				FragmentTable,
				FragmentGroupByKeyword,
				FragmentNone,
				FragmentOrderByKeyword,
				FragmentNone,
			},
		},
		{
			name: "aggregation after select",
			query: "select\n" +
				`    sum("t1"."metric_hll") as "m",` + "\n" +
				`    count(distinct "t1"."user_id") as "c"`,
			want: []FragmentType{
				FragmentSelectKeyword,
				FragmentSelectAggregation,
				FragmentSelectAggregation,
			},
		},
		{
			name: "aggregation shape outside select context stays plain",
			query: "from\n" +
				`    sum("t1"."metric_hll") as "m"`,
			want: []FragmentType{
				FragmentFromKeyword,
				FragmentNone,
			},
		},
		{
			name: "conditions after where and and",
			query: "where\n" +
				`    "t1"."id" = "t2"."event_id"` + "\n" +
				"and\n" +
				`    "t1"."city" = 'Berlin'` + "\n" +
				"and\n" +
				`    ("t1"."region" in ('north', 'south'))`,
			want: []FragmentType{
				FragmentWhereKeyword,
				FragmentJoinCondition,
				FragmentAndKeyword,
				FragmentCondition,
				FragmentAndKeyword,
				FragmentCondition,
			},
		},
		{
			name: "indented keyword is not a keyword",
			query: "select\n" +
				"  from\n" +
				`    "public"."events" as "t1"`,
			want: []FragmentType{
				FragmentSelectKeyword,
				FragmentNone,
				// Still in select context, so the table shape is not matched.
				FragmentNone,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := parseQuery(tt.query)

			if len(p.fragments) != len(tt.want) {
				t.Fatalf("got %d fragments, want %d", len(p.fragments), len(tt.want))
			}
			for i, fragment := range p.fragments {
				if fragment.Type != tt.want[i] {
					t.Errorf("line %d %q: got type %s, want %s",
						i, fragment.Text, fragment.Type, tt.want[i])
				}
			}
		})
	}
}

func TestParseQueryTableAttributes(t *testing.T) {
	p := parseQuery("from\n" + `    "public"."events" as "t1",`)

	table := p.fragments[1]
	if table.Type != FragmentTable {
		t.Fatalf("got type %s, want %s", table.Type, FragmentTable)
	}
	if table.Schema != "public" || table.Table != "events" || table.Alias != "t1" {
		t.Errorf("got %s.%s as %s, want public.events as t1",
			table.Schema, table.Table, table.Alias)
	}
	if p.aliases["t1"] != table {
		t.Error("alias t1 not registered to the table fragment")
	}
}

func TestParseQueryAggregationAttributes(t *testing.T) {
	tests := []struct {
		line        string
		wantAggFunc string
		wantHasNext bool
	}{
		{`    sum("t1"."metric_hll") as "m",`, "sum(", true},
		{`    count(distinct "t1"."user_id") as "c"`, "count(distinct", false},
		{`    count("t1"."user_id") as "c"`, "count(", false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			p := parseQuery("select\n" + tt.line)

			fragment := p.fragments[1]
			if fragment.Type != FragmentSelectAggregation {
				t.Fatalf("got type %s, want %s", fragment.Type, FragmentSelectAggregation)
			}
			if fragment.AggFunc != tt.wantAggFunc {
				t.Errorf("got agg func %q, want %q", fragment.AggFunc, tt.wantAggFunc)
			}
			if fragment.HasNext != tt.wantHasNext {
				t.Errorf("got hasNext %v, want %v", fragment.HasNext, tt.wantHasNext)
			}
			if fragment.TableAlias != "t1" {
				t.Errorf("got table alias %q, want t1", fragment.TableAlias)
			}
		})
	}
}

func TestParseQueryAliasLastWriterWins(t *testing.T) {
	// The select clause registers t1 against the aggregation fragment
	// first; the from clause then overwrites it with the table fragment.
	query := "select\n" +
		`    sum("t1"."metric_hll") as "m"` + "\n" +
		"from\n" +
		`    "public"."events" as "t1"`

	p := parseQuery(query)

	owner := p.aliases["t1"]
	if owner == nil {
		t.Fatal("alias t1 not registered")
	}
	if owner.Type != FragmentTable {
		t.Errorf("alias t1 owned by %s fragment, want %s", owner.Type, FragmentTable)
	}
}

func TestParseQueryJoinRegistry(t *testing.T) {
	query := "where\n" +
		`    "fact"."customer_id" = "dim"."id"`

	p := parseQuery(query)

	join := p.joins["dim"]
	if join == nil {
		t.Fatal("joined alias dim not registered")
	}
	if join.TableAlias != "fact" || join.Column != "customer_id" {
		t.Errorf("got left side %s.%s, want fact.customer_id", join.TableAlias, join.Column)
	}
	if join.JoinedAlias != "dim" || join.JoinedColumn != "id" {
		t.Errorf("got right side %s.%s, want dim.id", join.JoinedAlias, join.JoinedColumn)
	}

	// Only the right-hand alias is indexed.
	if p.joins["fact"] != nil {
		t.Error("left-hand alias unexpectedly registered in join registry")
	}
}

func TestParseQueryConditionCheckRunsAfterJoinMatch(t *testing.T) {
	// The condition patterns are checked even on a line the join pattern
	// already classified. The shapes are disjoint, so the join
	// classification must survive.
	query := "where\n" +
		`    "fact"."customer_id" = "dim"."id"` + "\n" +
		"and\n" +
		`    "dim"."name" = 'acme corp'`

	p := parseQuery(query)

	if got := p.fragments[1].Type; got != FragmentJoinCondition {
		t.Errorf("join line classified as %s, want %s", got, FragmentJoinCondition)
	}
	if got := p.fragments[3].Type; got != FragmentCondition {
		t.Errorf("condition line classified as %s, want %s", got, FragmentCondition)
	}
}

func TestParseQueryBracketedCondition(t *testing.T) {
	p := parseQuery("where\n" + `    ("t1"."status" = 'open')`)

	fragment := p.fragments[1]
	if fragment.Type != FragmentCondition {
		t.Fatalf("got type %s, want %s", fragment.Type, FragmentCondition)
	}
	if fragment.TableAlias != "t1" || fragment.Column != "status" {
		t.Errorf("got %s.%s, want t1.status", fragment.TableAlias, fragment.Column)
	}
}

func TestParseQueryRoundTrip(t *testing.T) {
	// Reassembling unrewritten fragments must reproduce the input
	// byte-for-byte, whatever the input looks like.
	queries := []string{
		"select\n    \"t1\".\"city\" as \"c0\"\nfrom\n    \"public\".\"events\" as \"t1\"",
		"",
		"\n",
		"not sql at all",
		"line one\n\nline three\n",
		"carriage\r\nreturns survive\r\n",
	}

	for _, query := range queries {
		p := parseQuery(query)

		rendered := make([]string, len(p.fragments))
		for i, fragment := range p.fragments {
			rendered[i] = fragment.Rendered()
		}
		if got := strings.Join(rendered, lineSeparator); got != query {
			t.Errorf("round trip changed %q into %q", query, got)
		}
	}
}
