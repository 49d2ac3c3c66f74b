package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/bili-comment/internal/domain"
	"github.com/kurihiro0119/bili-comment/internal/gateway"
	"github.com/kurihiro0119/bili-comment/internal/gateway/gatewaytest"
	"github.com/kurihiro0119/bili-comment/internal/poll/polltest"
)

func pageOf(q domain.SearchQuery, total int, ids ...string) *domain.SearchResultPage {
	items := make([]domain.Video, len(ids))
	for i, id := range ids {
		items[i] = domain.Video{BVID: id, Title: q.Keyword + " " + id}
	}
	return &domain.SearchResultPage{Page: q.Page, PageSize: q.PageSize, Total: total, Items: items}
}

func recordingFake(queries *[]domain.SearchQuery) *gatewaytest.Fake {
	return &gatewaytest.Fake{
		SearchVideosFunc: func(ctx context.Context, q domain.SearchQuery) (*domain.SearchResultPage, error) {
			*queries = append(*queries, q)
			return pageOf(q, 45, fmt.Sprintf("BV%d-a", q.Page), fmt.Sprintf("BV%d-b", q.Page)), nil
		},
	}
}

func TestController_SearchStoresResults(t *testing.T) {
	var queries []domain.SearchQuery
	c := NewController(recordingFake(&queries), polltest.New(), nil)

	require.NoError(t, c.Search(context.Background(), "golang"))
	require.Equal(t, []domain.SearchQuery{{Keyword: "golang", Page: 1, PageSize: 20, Order: domain.SearchOrderTotalRank}}, queries)
	require.Len(t, c.Items(), 2)
	require.Equal(t, 45, c.Total())
	require.Equal(t, 3, c.TotalPages())
}

func TestController_BlankKeywordSkipsGateway(t *testing.T) {
	var queries []domain.SearchQuery
	fake := recordingFake(&queries)
	c := NewController(fake, polltest.New(), nil)

	require.NoError(t, c.Search(context.Background(), "golang"))
	require.NoError(t, c.Search(context.Background(), "   "))

	require.Equal(t, 1, fake.Calls(gateway.OpSearchVideos))
	require.Empty(t, c.Items())
	require.Zero(t, c.Total())
}

func TestController_InFlightSearchSkipsNewCall(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	fake := &gatewaytest.Fake{
		SearchVideosFunc: func(ctx context.Context, q domain.SearchQuery) (*domain.SearchResultPage, error) {
			close(started)
			<-release
			return pageOf(q, 1, "BV1"), nil
		},
	}
	c := NewController(fake, polltest.New(), nil)

	errc := make(chan error, 1)
	go func() { errc <- c.Search(context.Background(), "first") }()
	<-started
	require.True(t, c.Loading())

	require.NoError(t, c.Refresh(context.Background()))
	close(release)
	require.NoError(t, <-errc)

	require.Equal(t, 1, fake.Calls(gateway.OpSearchVideos))
	require.False(t, c.Loading())
}

func TestController_BlankKeywordClearsDuringInFlightSearch(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	fake := &gatewaytest.Fake{
		SearchVideosFunc: func(ctx context.Context, q domain.SearchQuery) (*domain.SearchResultPage, error) {
			close(started)
			<-release
			return pageOf(q, 1, "BV1"), nil
		},
	}
	c := NewController(fake, polltest.New(), nil)

	errc := make(chan error, 1)
	go func() { errc <- c.Search(context.Background(), "first") }()
	<-started

	require.NoError(t, c.Search(context.Background(), " "))
	require.Empty(t, c.Items())
	require.Zero(t, c.Total())

	close(release)
	require.NoError(t, <-errc)
	require.Empty(t, c.Items(), "late result for the old keyword is dropped")
	require.False(t, c.Loading())
	require.Equal(t, 1, fake.Calls(gateway.OpSearchVideos))
}

func TestController_FailurePropagatesAndClearsLoading(t *testing.T) {
	fake := &gatewaytest.Fake{
		SearchVideosFunc: func(ctx context.Context, q domain.SearchQuery) (*domain.SearchResultPage, error) {
			return nil, gateway.Transport(gateway.OpSearchVideos, fmt.Errorf("dial tcp: refused"))
		},
	}
	c := NewController(fake, polltest.New(), nil)

	err := c.Search(context.Background(), "golang")
	require.True(t, gateway.IsTransport(err))
	require.False(t, c.Loading())
}

func TestController_DebounceRunsOnlyLastKeyword(t *testing.T) {
	var queries []domain.SearchQuery
	sched := polltest.New()
	c := NewController(recordingFake(&queries), sched, nil)

	for _, kw := range []string{"g", "go", "gol"} {
		c.SearchDebounced(context.Background(), kw, DefaultDebounce)
	}
	require.Empty(t, queries)
	require.Equal(t, []time.Duration{DefaultDebounce}, sched.Delays())

	sched.FireAll(10)
	require.Len(t, queries, 1)
	require.Equal(t, "gol", queries[0].Keyword)
	require.Equal(t, "gol", c.Keyword())
}

func TestController_DebounceCancel(t *testing.T) {
	var queries []domain.SearchQuery
	sched := polltest.New()
	c := NewController(recordingFake(&queries), sched, nil)

	c.SearchDebounced(context.Background(), "go", DefaultDebounce)
	c.CancelPending()
	require.Zero(t, sched.FireAll(10))
	require.Empty(t, queries)
}

func TestController_PagingAndOrdering(t *testing.T) {
	var queries []domain.SearchQuery
	c := NewController(recordingFake(&queries), polltest.New(), nil)

	require.NoError(t, c.Search(context.Background(), "golang"))
	require.NoError(t, c.SetPage(context.Background(), 3))
	require.Equal(t, 3, c.Page())

	require.NoError(t, c.SetOrder(context.Background(), domain.SearchOrderClick))
	require.Equal(t, 1, c.Page())
	require.Equal(t, domain.SearchOrderClick, c.Order())

	require.Len(t, queries, 3)
	require.Equal(t, 3, queries[1].Page)
	require.Equal(t, domain.SearchQuery{Keyword: "golang", Page: 1, PageSize: 20, Order: domain.SearchOrderClick}, queries[2])
}

func TestController_SelectionSurvivesPaging(t *testing.T) {
	var queries []domain.SearchQuery
	c := NewController(recordingFake(&queries), polltest.New(), nil)

	require.NoError(t, c.Search(context.Background(), "golang"))
	first := c.Items()
	c.ToggleSelect(first[0])
	require.True(t, c.IsSelected("BV1-a"))

	require.NoError(t, c.SetPage(context.Background(), 2))
	c.SelectAll()
	require.Equal(t, 3, c.SelectedCount())
	require.Len(t, c.SelectedVideos(), 2, "only current page items")
	require.Equal(t, []string{"BV1-a", "BV2-a", "BV2-b"}, bvids(c.AllSelected()))

	c.ToggleSelect(first[0])
	require.False(t, c.IsSelected("BV1-a"))
	require.Equal(t, 2, c.SelectedCount())

	require.NoError(t, c.Refresh(context.Background()))
	require.Equal(t, 2, c.SelectedCount(), "refresh keeps the selection")

	require.NoError(t, c.Search(context.Background(), "rust"))
	require.Zero(t, c.SelectedCount(), "a new keyword clears the selection")

	c.SelectAll()
	c.ClearSelection()
	require.Zero(t, c.SelectedCount())
}

func TestController_TotalPages(t *testing.T) {
	fake := &gatewaytest.Fake{
		SearchVideosFunc: func(ctx context.Context, q domain.SearchQuery) (*domain.SearchResultPage, error) {
			return &domain.SearchResultPage{Page: 1, PageSize: q.PageSize, Total: 40}, nil
		},
	}
	c := NewController(fake, polltest.New(), nil)
	require.Zero(t, c.TotalPages())

	require.NoError(t, c.Search(context.Background(), "golang"))
	require.Equal(t, 2, c.TotalPages())

	c.SetPageSize(30)
	require.Equal(t, 2, c.TotalPages())
	c.SetPageSize(50)
	require.Equal(t, 1, c.TotalPages())
}

func bvids(videos []domain.Video) []string {
	out := make([]string, len(videos))
	for i, v := range videos {
		out[i] = v.BVID
	}
	return out
}

func TestController_SearchAtStartsFromPage(t *testing.T) {
	var queries []domain.SearchQuery
	c := NewController(recordingFake(&queries), polltest.New(), nil)
	c.UseOrder(domain.SearchOrderClick)
	c.SetPageSize(10)

	require.NoError(t, c.SearchAt(context.Background(), "golang", 3))
	require.Equal(t, []domain.SearchQuery{{Keyword: "golang", Page: 3, PageSize: 10, Order: domain.SearchOrderClick}}, queries)
	require.Equal(t, 3, c.Page())
}
