package rewrite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/ha1tch/sqlfix/metadata"
	"github.com/ha1tch/sqlfix/pkg/errors"
	"github.com/ha1tch/sqlfix/pkg/log"
)

// Rewriter applies the known query fixes. All per-query state is local
// to a Rewrite call; the metadata store is the only shared resource, so
// a single Rewriter serves concurrent callers.
type Rewriter struct {
	store  *metadata.Store
	logger *log.Logger
}

// New creates a Rewriter backed by the given metadata store.
func New(store *metadata.Store, logger *log.Logger) *Rewriter {
	return &Rewriter{
		store:  store,
		logger: logger,
	}
}

// Rewrite returns the query with known-problematic aggregations
// replaced, or the input unchanged when no rule applies. It never
// fails: any error along the way is logged and the original query is
// returned as-is, so a rewriter defect can never corrupt a live query.
func (r *Rewriter) Rewrite(ctx context.Context, query string, db *sql.DB) (result string) {

	defer func() {
		if rec := recover(); rec != nil {
			err := errors.Newf(errors.ErrCodeRewritePanic, "recovered: %v", rec).
				WithOp("Rewriter.Rewrite")
			r.logger.System().Error("query rewrite failed, passing query through", err)
			result = query
		}
	}()

	p := parseQuery(query)

	hllColumns := r.store.HyperLogLogColumns(ctx, db)

	if !replaceHllAggregations(p, hllColumns) {
		return query
	}

	rendered := make([]string, len(p.fragments))
	for i, fragment := range p.fragments {
		rendered[i] = fragment.Rendered()
	}
	result = strings.Join(rendered, lineSeparator)

	r.logger.Query().Debug("rewritten to:\n" + result)
	return result
}
