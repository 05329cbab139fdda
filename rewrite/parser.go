package rewrite

import (
	"regexp"
	"strings"
)

// lineSeparator is the terminator the upstream generator emits between
// query lines on the platforms this service runs on.
const lineSeparator = "\n"

// Keyword lines appear alone on their line, unindented. An exact match
// updates the parse context for the lines that follow it.
var keywords = map[string]FragmentType{
	"select":   FragmentSelectKeyword,
	"from":     FragmentFromKeyword,
	"where":    FragmentWhereKeyword,
	"and":      FragmentAndKeyword,
	"group by": FragmentGroupByKeyword,
	"order by": FragmentOrderByKeyword,
}

// Line shapes the generator is known to produce. Full-line matches only.
var (
	tablePattern       = regexp.MustCompile(`^"(\w+)"."(\w+)" as "(\w+)",?$`)
	aggregationPattern = regexp.MustCompile(`^([\w (]+)"(\w+)"."(\w+)"\) as "(\w+)"(,)?$`)

	joinConditionPattern = regexp.MustCompile(`^"(\w+)"."(\w+)" = "(\w+)"."(\w+)"$`)
	equalsPattern        = regexp.MustCompile(`^"(\w+)"."(\w+)" = [\w' ]+$`)
	inPattern            = regexp.MustCompile(`^"(\w+)"."(\w+)" in \([\w', ]+\)$`)
)

// lineMatcher ties a parse context to a line shape. Every matcher whose
// context covers the current keyword runs, in table order, without
// short-circuiting; a later matcher may overwrite the classification of
// an earlier one. New rewrite rules add matchers here, not loop logic.
type lineMatcher struct {
	contexts []FragmentType

	// stripParens removes one layer of surrounding parentheses from the
	// candidate text before matching. Affects this matcher only.
	stripParens bool

	// patterns are tried in order; the first match wins.
	patterns []*regexp.Regexp

	apply func(p *parseResult, f *Fragment, m []string)
}

func (lm *lineMatcher) inContext(keyword FragmentType) bool {
	for _, c := range lm.contexts {
		if c == keyword {
			return true
		}
	}
	return false
}

var lineMatchers = []lineMatcher{
	{
		contexts: []FragmentType{FragmentSelectKeyword},
		patterns: []*regexp.Regexp{aggregationPattern},
		apply: func(p *parseResult, f *Fragment, m []string) {
			f.Type = FragmentSelectAggregation
			f.AggFunc = strings.TrimSpace(m[1])
			f.TableAlias = m[2]
			f.Column = m[3]
			f.ResultAlias = m[4]
			f.HasNext = m[5] != ""
			p.aliases[f.TableAlias] = f
		},
	},
	{
		contexts: []FragmentType{FragmentFromKeyword},
		patterns: []*regexp.Regexp{tablePattern},
		apply: func(p *parseResult, f *Fragment, m []string) {
			f.Type = FragmentTable
			f.Schema = m[1]
			f.Table = m[2]
			f.Alias = m[3]
			p.aliases[f.Alias] = f
		},
	},
	{
		contexts: []FragmentType{FragmentWhereKeyword, FragmentAndKeyword},
		patterns: []*regexp.Regexp{joinConditionPattern},
		apply: func(p *parseResult, f *Fragment, m []string) {
			f.Type = FragmentJoinCondition
			f.TableAlias = m[1]
			f.Column = m[2]
			f.JoinedAlias = m[3]
			f.JoinedColumn = m[4]
			// Only the joined (right-hand) alias is indexed.
			p.joins[f.JoinedAlias] = f
		},
	},
	{
		// Runs after the join matcher even when that one matched; the
		// two shapes are disjoint, but the overwrite order is part of
		// the observable contract.
		contexts:    []FragmentType{FragmentWhereKeyword, FragmentAndKeyword},
		stripParens: true, // sometimes conditions are in brackets
		patterns:    []*regexp.Regexp{equalsPattern, inPattern},
		apply: func(p *parseResult, f *Fragment, m []string) {
			f.Type = FragmentCondition
			f.TableAlias = m[1]
			f.Column = m[2]
		},
	},
}

// parseResult holds the per-invocation parse state. Never shared or
// reused across rewrites.
type parseResult struct {
	fragments []*Fragment

	// aliases maps a table alias to the fragment that declared it.
	// Last writer wins; a from-clause table overwrites a select
	// aggregation that named the same alias earlier in the query.
	aliases map[string]*Fragment

	// joins maps the joined (right-hand) alias of a join condition to
	// the fragment expressing it. Only that direction is indexed.
	joins map[string]*Fragment
}

// parseQuery classifies the query line by line. Lines matching no known
// shape stay unclassified; parsing itself never fails.
func parseQuery(query string) *parseResult {
	p := &parseResult{
		aliases: make(map[string]*Fragment),
		joins:   make(map[string]*Fragment),
	}

	lastKeyword := FragmentNone

	for _, text := range strings.Split(query, lineSeparator) {

		fragment := &Fragment{Text: text}
		p.fragments = append(p.fragments, fragment)

		// Keywords are expected to appear alone on the line. A keyword
		// line is classified once and never reconsidered.
		if kw, ok := keywords[text]; ok {
			fragment.Type = kw
			lastKeyword = kw
			continue
		}

		text = strings.TrimSpace(text)

		for i := range lineMatchers {
			matcher := &lineMatchers[i]
			if !matcher.inContext(lastKeyword) {
				continue
			}

			candidate := text
			if matcher.stripParens &&
				strings.HasPrefix(candidate, "(") && strings.HasSuffix(candidate, ")") {
				candidate = candidate[1 : len(candidate)-1]
			}

			for _, pattern := range matcher.patterns {
				if m := pattern.FindStringSubmatch(candidate); m != nil {
					matcher.apply(p, fragment, m)
					break
				}
			}
		}
	}

	return p
}
