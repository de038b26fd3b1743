package radacct

import (
	"context"
	"strconv"
	"strings"
)

// SortKey is the closed set of orderings the accounting search accepts.
type SortKey string

const (
	SortStartTime       SortKey = "acct_start_time"
	SortStopTime        SortKey = "acct_stop_time"
	SortInputOctets     SortKey = "acct_input_octets"
	SortOutputOctets    SortKey = "acct_output_octets"
	SortStartTimeRev    SortKey = "acct_start_time_rev"
	SortStopTimeRev     SortKey = "acct_stop_time_rev"
	SortInputOctetsRev  SortKey = "acct_input_octets_rev"
	SortOutputOctetsRev SortKey = "acct_output_octets_rev"

	DefaultSort = SortStartTimeRev
)

var sortColumns = map[SortKey]string{
	SortStartTime:    "AcctStartTime",
	SortStopTime:     "AcctStopTime",
	SortInputOctets:  "AcctInputOctets",
	SortOutputOctets: "AcctOutputOctets",
}

// ResolveSort maps a request parameter to a SortKey. Unknown or empty values
// fall back to DefaultSort.
func ResolveSort(raw string) SortKey {
	k := SortKey(strings.TrimSpace(raw))
	if _, ok := sortColumns[k.base()]; ok {
		return k
	}
	return DefaultSort
}

func (k SortKey) base() SortKey {
	return SortKey(strings.TrimSuffix(string(k), "_rev"))
}

func (k SortKey) descending() bool {
	return strings.HasSuffix(string(k), "_rev")
}

// orderBy renders the ORDER BY list. RadAcctId breaks ties in the same
// direction so pages are stable.
func (k SortKey) orderBy() string {
	col, ok := sortColumns[k.base()]
	if !ok {
		return DefaultSort.orderBy()
	}
	dir := " ASC"
	if k.descending() {
		dir = " DESC"
	}
	return col + dir + ", RadAcctId" + dir
}

// ParsePage reads a 1-based page number; anything unparseable or below 1 is 1.
func ParsePage(raw string) int {
	p, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || p < 1 {
		return 1
	}
	return p
}

type SearchResult struct {
	Records []Record
	Total   int64
	Page    int
	PerPage int
	Sort    SortKey
}

// Search returns one page of the scope's sessions plus the scope's total.
func (r *Repository) Search(ctx context.Context, sort SortKey, page, perPage int) (SearchResult, error) {
	if _, ok := sortColumns[sort.base()]; !ok {
		sort = DefaultSort
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}
	total, err := r.Count(ctx)
	if err != nil {
		return SearchResult{}, err
	}
	if int64(page-1) > total/int64(perPage) {
		return SearchResult{Records: []Record{}, Total: total, Page: page, PerPage: perPage, Sort: sort}, nil
	}
	where, args := r.scope("")
	args = append(args, perPage, (page-1)*perPage)
	recs, err := r.query(ctx, `SELECT `+r.columns()+` FROM radacct`+where+` ORDER BY `+sort.orderBy()+` LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{Records: recs, Total: total, Page: page, PerPage: perPage, Sort: sort}, nil
}
