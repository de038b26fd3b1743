package radacct

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveSort(t *testing.T) {
	cases := map[string]SortKey{
		"acct_start_time":         SortStartTime,
		"acct_stop_time_rev":      SortStopTimeRev,
		"acct_input_octets":       SortInputOctets,
		"acct_output_octets_rev":  SortOutputOctetsRev,
		"":                        SortStartTimeRev,
		"username":                SortStartTimeRev,
		"acct_start_time_rev_rev": SortStartTimeRev,
		"AcctStartTime DESC; --":  SortStartTimeRev,
	}
	for raw, want := range cases {
		require.Equal(t, want, ResolveSort(raw), "raw=%q", raw)
	}
}

func TestSortOrderByBreaksTiesByID(t *testing.T) {
	require.Equal(t, "AcctStartTime DESC, RadAcctId DESC", SortStartTimeRev.orderBy())
	require.Equal(t, "AcctInputOctets ASC, RadAcctId ASC", SortInputOctets.orderBy())
	require.Equal(t, "AcctStartTime DESC, RadAcctId DESC", SortKey("bogus").orderBy())
}

func TestParsePage(t *testing.T) {
	for raw, want := range map[string]int{"": 1, "0": 1, "-3": 1, "abc": 1, "2": 2, " 7 ": 7} {
		require.Equal(t, want, ParsePage(raw), "raw=%q", raw)
	}
}

func TestSearchPaginatesUserScope(t *testing.T) {
	repo := newTestRepo(t,
		session{user: "alice", start: "2026-03-01 08:00:00", in: 30},
		session{user: "alice", start: "2026-03-02 08:00:00", in: 10},
		session{user: "alice", start: "2026-03-03 08:00:00", in: 20},
		session{user: "bob", start: "2026-03-04 08:00:00", in: 99},
	)
	ctx := context.Background()
	alice := repo.ForUser("alice")

	res, err := alice.Search(ctx, DefaultSort, 1, 2)
	require.NoError(t, err)
	require.EqualValues(t, 3, res.Total)
	require.Equal(t, 1, res.Page)
	require.Equal(t, 2, res.PerPage)
	require.Equal(t, SortStartTimeRev, res.Sort)
	require.Len(t, res.Records, 2)
	require.Equal(t, "2026-03-03", res.Records[0].StartTime.Format("2006-01-02"))
	require.Equal(t, "2026-03-02", res.Records[1].StartTime.Format("2006-01-02"))

	res, err = alice.Search(ctx, DefaultSort, 2, 2)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	require.Equal(t, "2026-03-01", res.Records[0].StartTime.Format("2006-01-02"))

	res, err = alice.Search(ctx, DefaultSort, 5, 2)
	require.NoError(t, err)
	require.Empty(t, res.Records)
	require.EqualValues(t, 3, res.Total)

	res, err = alice.Search(ctx, SortInputOctets, 1, 10)
	require.NoError(t, err)
	require.Len(t, res.Records, 3)
	require.EqualValues(t, []int64{10, 20, 30}, []int64{res.Records[0].InputOctets, res.Records[1].InputOctets, res.Records[2].InputOctets})
}

func TestSearchTiesAreStable(t *testing.T) {
	repo := newTestRepo(t,
		session{user: "alice", start: "2026-03-01 08:00:00", in: 5},
		session{user: "alice", start: "2026-03-01 09:00:00", in: 5},
		session{user: "alice", start: "2026-03-01 10:00:00", in: 5},
	)
	ctx := context.Background()

	asc, err := repo.Search(ctx, SortInputOctets, 1, 10)
	require.NoError(t, err)
	desc, err := repo.Search(ctx, SortInputOctetsRev, 1, 10)
	require.NoError(t, err)

	require.Len(t, asc.Records, 3)
	for i := range asc.Records {
		if i > 0 {
			require.Less(t, asc.Records[i-1].ID, asc.Records[i].ID)
		}
		require.Equal(t, asc.Records[i].ID, desc.Records[len(desc.Records)-1-i].ID)
	}
}

func TestSearchNormalisesBadInput(t *testing.T) {
	repo := newTestRepo(t, session{user: "alice", start: "2026-03-01 08:00:00"})
	res, err := repo.Search(context.Background(), SortKey("nope"), 0, 0)
	require.NoError(t, err)
	require.Equal(t, DefaultSort, res.Sort)
	require.Equal(t, 1, res.Page)
	require.Equal(t, 1, res.PerPage)
	require.Len(t, res.Records, 1)
}

func TestSearchUnknownSortMatchesDefault(t *testing.T) {
	repo := newTestRepo(t,
		session{user: "alice", start: "2026-03-02 08:00:00"},
		session{user: "bob", start: "2026-03-04 08:00:00"},
		session{user: "alice", start: "2026-03-02 08:00:00"},
		session{user: "carol", start: "2026-03-01 08:00:00"},
		session{user: "bob", start: "2026-03-03 08:00:00"},
	)
	ctx := context.Background()

	got, err := repo.Search(ctx, SortKey("nope"), 1, 10)
	require.NoError(t, err)
	want, err := repo.Search(ctx, ResolveSort("acct_start_time_rev"), 1, 10)
	require.NoError(t, err)

	ids := func(recs []Record) []int64 {
		out := make([]int64, 0, len(recs))
		for _, r := range recs {
			out = append(out, r.ID)
		}
		return out
	}
	require.Len(t, got.Records, 5)
	require.Equal(t, ids(want.Records), ids(got.Records))
	require.Equal(t, "2026-03-04", got.Records[0].StartTime.Format("2006-01-02"))
	require.Greater(t, got.Records[2].ID, got.Records[3].ID)
}

func TestSearchHugePageIsEmpty(t *testing.T) {
	repo := newTestRepo(t,
		session{user: "alice", start: "2026-03-01 08:00:00"},
		session{user: "alice", start: "2026-03-02 08:00:00"},
	)
	page := ParsePage("9223372036854775807")

	res, err := repo.Search(context.Background(), DefaultSort, page, 10)
	require.NoError(t, err)
	require.Empty(t, res.Records)
	require.EqualValues(t, 2, res.Total)
	require.Equal(t, page, res.Page)
}
