package domain

// Video represents a search hit that comments can be sent to
type Video struct {
	AID         int64  `json:"aid"`
	BVID        string `json:"bvid"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	MID         int64  `json:"mid"`
	Pic         string `json:"pic"`
	Play        int64  `json:"play"`
	Danmaku     int64  `json:"danmaku"`
	PubDate     int64  `json:"pubdate"`
	Duration    string `json:"duration"`
	Description string `json:"description"`
}

// SearchOrder represents the sort order of a video search
type SearchOrder string

const (
	SearchOrderTotalRank SearchOrder = "totalrank"
	SearchOrderClick     SearchOrder = "click"
	SearchOrderPubDate   SearchOrder = "pubdate"
	SearchOrderDanmaku   SearchOrder = "dm"
	SearchOrderStow      SearchOrder = "stow"
)

// Valid reports whether the order is one the platform understands
func (o SearchOrder) Valid() bool {
	switch o {
	case SearchOrderTotalRank, SearchOrderClick, SearchOrderPubDate, SearchOrderDanmaku, SearchOrderStow:
		return true
	}
	return false
}

const (
	DefaultPageSize    = 20
	DefaultSearchOrder = SearchOrderTotalRank
)

// SearchQuery represents the parameters of a video search
type SearchQuery struct {
	Keyword  string      `json:"keyword"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Order    SearchOrder `json:"order"`
}

// Normalize fills zero fields with defaults
func (q SearchQuery) Normalize() SearchQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.Order == "" {
		q.Order = DefaultSearchOrder
	}
	return q
}

// SearchResultPage represents one page of search results
type SearchResultPage struct {
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
	Total    int     `json:"total"`
	Items    []Video `json:"items"`
}
