package bilibili

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kurihiro0119/bili-comment/internal/domain"
)

const maxSearchAttempts = 5

var errRiskPage = errors.New("platform returned a verification page, try again later")

// flexInt decodes a count sent either as a number or as a string.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" || string(b) == "--" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}

type searchItem struct {
	AID         int64   `json:"aid"`
	BVID        string  `json:"bvid"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	MID         int64   `json:"mid"`
	Pic         string  `json:"pic"`
	Play        flexInt `json:"play"`
	Danmaku     flexInt `json:"video_review"`
	PubDate     int64   `json:"pubdate"`
	Duration    string  `json:"duration"`
	Description string  `json:"description"`
}

type searchData struct {
	NumResults int          `json:"numResults"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pagesize"`
	Result     []searchItem `json:"result"`
}

// SearchVideos searches videos by keyword. Transient failures and
// verification pages are retried a few times.
func (c *webClient) SearchVideos(ctx context.Context, query domain.SearchQuery) (*domain.SearchResultPage, error) {
	query = query.Normalize()
	params := url.Values{
		"search_type": {"video"},
		"keyword":     {query.Keyword},
		"page":        {strconv.Itoa(query.Page)},
		"page_size":   {strconv.Itoa(query.PageSize)},
		"order":       {string(query.Order)},
	}
	endpoint := c.apiURL + "/x/web-interface/search/type?" + params.Encode()

	var lastErr error
	for attempt := 1; attempt <= maxSearchAttempts; attempt++ {
		page, delay, err := c.searchOnce(ctx, endpoint)
		if err == nil {
			c.logger.Info("search done", "keyword", query.Keyword, "page", page.Page, "items", len(page.Items), "total", page.Total, "attempt", attempt)
			return page, nil
		}
		if delay == 0 {
			return nil, err
		}

		lastErr = err
		c.logger.Warn("search attempt failed", "attempt", attempt, "max", maxSearchAttempts, "error", err)
		if attempt == maxSearchAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

// searchOnce makes one attempt. A non-zero delay means the attempt may be retried after it.
func (c *webClient) searchOnce(ctx context.Context, endpoint string) (*domain.SearchResultPage, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	body, _, err := c.send(req)
	if err != nil {
		return nil, c.retryDelay, err
	}

	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "<!DOCTYPE") || strings.HasPrefix(trimmed, "<html") {
		return nil, 2 * c.retryDelay, errRiskPage
	}

	var resp envelope[searchData]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, c.retryDelay, fmt.Errorf("failed to decode search response: %w", err)
	}
	data, err := resp.result()
	if err != nil {
		return nil, 0, err
	}

	items := make([]domain.Video, 0, len(data.Result))
	for _, it := range data.Result {
		items = append(items, domain.Video{
			AID:         it.AID,
			BVID:        it.BVID,
			Title:       cleanHighlight(it.Title),
			Author:      it.Author,
			MID:         it.MID,
			Pic:         normalizePicURL(it.Pic),
			Play:        int64(it.Play),
			Danmaku:     int64(it.Danmaku),
			PubDate:     it.PubDate,
			Duration:    it.Duration,
			Description: it.Description,
		})
	}
	return &domain.SearchResultPage{
		Page:     data.Page,
		PageSize: data.PageSize,
		Total:    data.NumResults,
		Items:    items,
	}, 0, nil
}

// cleanHighlight strips the keyword highlight markup from titles.
func cleanHighlight(s string) string {
	s = strings.ReplaceAll(s, `<em class="keyword">`, "")
	return strings.ReplaceAll(s, "</em>", "")
}

func normalizePicURL(u string) string {
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	return u
}

// IsRiskPage reports whether err came from a verification page response.
func IsRiskPage(err error) bool {
	return errors.Is(err, errRiskPage)
}
