package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kurihiro0119/bili-comment/internal/domain"
	"github.com/kurihiro0119/bili-comment/internal/poll"
	"github.com/kurihiro0119/bili-comment/internal/search"
)

var (
	searchPage     int
	searchPageSize int
	searchOrder    string
)

var searchCmd = &cobra.Command{
	Use:   "search [keyword]",
	Short: "Search videos",
	Long:  `Search bilibili videos by keyword. Orders: totalrank, click, pubdate, dm, stow.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	addSearchFlags(searchCmd)
}

func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&searchPage, "page", 1, "result page")
	cmd.Flags().IntVar(&searchPageSize, "page-size", domain.DefaultPageSize, "results per page")
	cmd.Flags().StringVar(&searchOrder, "order", string(domain.DefaultSearchOrder), "sort order")
}

// newSearch runs the search described by the search flags
func newSearch(cmd *cobra.Command, e *env, keyword string) (*search.Controller, error) {
	order := domain.SearchOrder(searchOrder)
	if !order.Valid() {
		return nil, fmt.Errorf("unknown order %q", searchOrder)
	}

	ctrl := search.NewController(e.gw, poll.RealScheduler, e.logger)
	ctrl.UseOrder(order)
	ctrl.SetPageSize(searchPageSize)
	if err := ctrl.SearchAt(cmd.Context(), keyword, searchPage); err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return ctrl, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	keyword := strings.Join(args, " ")
	ctrl, err := newSearch(cmd, e, keyword)
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(domain.SearchResultPage{
			Page:     ctrl.Page(),
			PageSize: searchPageSize,
			Total:    ctrl.Total(),
			Items:    ctrl.Items(),
		})
	}

	fmt.Printf("\n%s results for %q, page %d of %d\n\n",
		humanize.Comma(int64(ctrl.Total())), keyword, ctrl.Page(), ctrl.TotalPages())
	renderVideos(ctrl.Items(), nil)
	return nil
}

// parseSelection parses 1-based indices like "1,3,5-7" against n items
func parseSelection(sel string, n int) ([]int, error) {
	var out []int
	seen := make(map[int]bool)
	add := func(i int) error {
		if i < 1 || i > n {
			return fmt.Errorf("index %d out of range 1-%d", i, n)
		}
		if !seen[i] {
			seen[i] = true
			out = append(out, i-1)
		}
		return nil
	}

	for _, part := range strings.Split(sel, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		from, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid index %q", part)
		}
		to := from
		if isRange {
			if to, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil || to < from {
				return nil, fmt.Errorf("invalid range %q", part)
			}
		}
		for i := from; i <= to; i++ {
			if err := add(i); err != nil {
				return nil, err
			}
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("empty selection %q", sel)
	}
	return out, nil
}
