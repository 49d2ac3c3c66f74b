package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kurihiro0119/bili-comment/internal/comment"
	"github.com/kurihiro0119/bili-comment/internal/domain"
	"github.com/kurihiro0119/bili-comment/internal/poll"
	"github.com/kurihiro0119/bili-comment/internal/templates"
)

var (
	commentContent  string
	commentTemplate string
	batchSelect     string
	batchPlain      bool
)

var commentCmd = &cobra.Command{
	Use:   "comment [aid]",
	Short: "Post a comment to one video",
	Long:  `Post a comment to the video with the given aid (digits, optionally prefixed with "av").`,
	Args:  cobra.ExactArgs(1),
	RunE:  runComment,
}

var batchCmd = &cobra.Command{
	Use:   "batch [keyword]",
	Short: "Search videos and comment on the selected results",
	Long: `Search videos, select results (--select, default all on the page) and post the
same comment to each of them, one at a time at the backend's comment interval.

Progress is shown until the batch finishes. Press c to cancel the batch or q to
stop watching while it keeps running. Ctrl-C cancels the batch.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

var intervalCmd = &cobra.Command{
	Use:   "interval",
	Short: "Show the minimum gap between two comments",
	Args:  cobra.NoArgs,
	RunE:  runInterval,
}

func init() {
	for _, cmd := range []*cobra.Command{commentCmd, batchCmd} {
		cmd.Flags().StringVarP(&commentContent, "content", "m", "", "comment text")
		cmd.Flags().StringVarP(&commentTemplate, "template", "t", "", "use the content of this template id")
	}
	addSearchFlags(batchCmd)
	batchCmd.Flags().StringVar(&batchSelect, "select", "", "result indices to comment on, e.g. 1,3,5-7 (default all)")
	batchCmd.Flags().BoolVar(&batchPlain, "plain", false, "print progress lines instead of the interactive view")
}

// resolveContent returns the --content text or the content of --template
func resolveContent(ctx context.Context, e *env) (string, error) {
	if commentTemplate != "" {
		if commentContent != "" {
			return "", errors.New("use either --content or --template")
		}
		registry := templates.NewRegistry(e.gw)
		if _, err := registry.Fetch(ctx); err != nil {
			return "", fmt.Errorf("failed to load templates: %w", err)
		}
		tpl, ok := registry.Get(commentTemplate)
		if !ok {
			return "", fmt.Errorf("template %s not found", commentTemplate)
		}
		return tpl.Content, nil
	}
	if strings.TrimSpace(commentContent) == "" {
		return "", errors.New("comment text is required (--content or --template)")
	}
	return commentContent, nil
}

func parseAID(s string) (int64, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "av")
	aid, err := strconv.ParseInt(s, 10, 64)
	if err != nil || aid <= 0 {
		return 0, fmt.Errorf("invalid aid %q", s)
	}
	return aid, nil
}

func runComment(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	aid, err := parseAID(args[0])
	if err != nil {
		return err
	}

	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	content, err := resolveContent(ctx, e)
	if err != nil {
		return err
	}

	tracker := comment.NewTrackerWithInterval(e.gw, poll.RealScheduler, e.cfg.PollInterval, e.logger)
	result, err := tracker.SendComment(ctx, domain.Video{AID: aid}, content)
	if err != nil {
		return fmt.Errorf("failed to send comment: %w", err)
	}

	if outputJSON {
		return printJSON(result)
	}
	if !result.Success {
		return fmt.Errorf("comment rejected: %s", result.ErrorMessage)
	}
	if result.CommentID != nil {
		fmt.Printf("Comment posted (rpid %d)\n", *result.CommentID)
	} else {
		fmt.Println("Comment posted")
	}
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	content, err := resolveContent(ctx, e)
	if err != nil {
		return err
	}

	keyword := strings.Join(args, " ")
	ctrl, err := newSearch(cmd, e, keyword)
	if err != nil {
		return err
	}
	items := ctrl.Items()
	if len(items) == 0 {
		return fmt.Errorf("no videos found for %q", keyword)
	}

	if batchSelect == "" {
		ctrl.SelectAll()
	} else {
		indices, err := parseSelection(batchSelect, len(items))
		if err != nil {
			return err
		}
		for _, i := range indices {
			ctrl.ToggleSelect(items[i])
		}
	}
	videos := ctrl.AllSelected()

	tracker := comment.NewTrackerWithInterval(e.gw, poll.RealScheduler, e.cfg.PollInterval, e.logger)
	interval := tracker.FetchCommentInterval(ctx)

	if !outputJSON {
		renderVideos(items, ctrl.IsSelected)
		fmt.Printf("\nCommenting on %d videos, one every %ds\n", len(videos), interval)
	}

	id, err := tracker.SubmitBatch(ctx, videos, content)
	if err != nil {
		return fmt.Errorf("failed to start batch: %w", err)
	}
	if localMode && !outputJSON {
		fmt.Println("Running in process: the batch stops if you quit before it finishes.")
	}

	var outcome watchOutcome
	if batchPlain || outputJSON {
		outcome = watchPlain(ctx, tracker)
	} else {
		outcome, err = watchInteractive(ctx, tracker)
		if err != nil {
			return err
		}
	}

	snap := tracker.Snapshot()
	if outcome.cancelled {
		// polling stopped at cancel; show where the batch ended up
		if st, err := e.gw.GetBatchStatus(context.WithoutCancel(ctx), id); err == nil {
			snap.Status = st
		}
	}
	if outputJSON {
		return printJSON(struct {
			BatchID string              `json:"batch_id"`
			State   comment.State       `json:"state"`
			Status  *domain.BatchStatus `json:"status"`
		}{id, snap.State, snap.Status})
	}

	fmt.Println()
	if snap.Status != nil {
		renderBatch(snap.Status)
	}
	switch {
	case outcome.detached:
		fmt.Printf("Stopped watching. Batch %s keeps running.\n", id)
	case outcome.cancelErr != nil:
		return fmt.Errorf("failed to cancel batch: %w", outcome.cancelErr)
	case snap.BreakerTripped():
		return fmt.Errorf("lost track of batch %s after %d failed status checks", id, snap.Failures)
	}
	return nil
}

func runInterval(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	seconds, err := e.gw.GetCommentInterval(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get comment interval: %w", err)
	}
	if outputJSON {
		return printJSON(map[string]int{"seconds": seconds})
	}
	fmt.Printf("%ds between comments\n", seconds)
	return nil
}
