package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/kurihiro0119/bili-comment/internal/comment"
)

var (
	watchTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	watchMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	watchErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	watchOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
)

// watchOutcome is how watching a batch ended
type watchOutcome struct {
	detached  bool
	cancelled bool
	cancelErr error
}

// finished reports whether the tracker will not report further progress
func finished(s comment.Snapshot) bool {
	switch s.State {
	case comment.StateCompleted, comment.StateStalled, comment.StateCancelled, comment.StateCleared, comment.StateIdle:
		return true
	}
	return false
}

func progressLine(s comment.Snapshot) string {
	if s.Status == nil {
		return "waiting for first status..."
	}
	line := fmt.Sprintf("[%3d%%] %s/%s done, %s ok, %s failed",
		s.Percent(),
		humanize.Comma(int64(s.Status.Completed)),
		humanize.Comma(int64(s.Status.Total)),
		humanize.Comma(int64(s.Status.Success)),
		humanize.Comma(int64(s.Status.Failed)),
	)
	if s.Failures > 0 && s.State == comment.StatePolling {
		line += fmt.Sprintf(" (status check failed %d/%d)", s.Failures, comment.FailureThreshold)
	}
	return line
}

// watchChanges returns a channel that receives after tracker changes.
// Signals coalesce, so a receiver must read the tracker's current snapshot.
func watchChanges(tracker *comment.Tracker) (<-chan struct{}, func()) {
	changed := make(chan struct{}, 1)
	tracker.OnChange(func(comment.Snapshot) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	return changed, func() { tracker.OnChange(nil) }
}

// forwardSnapshots sends the latest snapshot on every change signal until stop is closed.
func forwardSnapshots(stop <-chan struct{}, changed <-chan struct{}, snapshot func() comment.Snapshot, send func(tea.Msg)) {
	for {
		select {
		case <-stop:
			return
		case <-changed:
			send(snapshotMsg(snapshot()))
		}
	}
}

// watchPlain prints a line per progress change until the batch finishes.
// Cancelling ctx cancels the batch.
func watchPlain(ctx context.Context, tracker *comment.Tracker) watchOutcome {
	var out io.Writer = os.Stdout
	if outputJSON {
		out = os.Stderr
	}

	changed, unsubscribe := watchChanges(tracker)
	defer unsubscribe()

	last := ""
	for {
		snap := tracker.Snapshot()
		if line := progressLine(snap); line != last {
			fmt.Fprintln(out, line)
			last = line
		}
		if finished(snap) {
			return watchOutcome{cancelled: snap.State == comment.StateCancelled}
		}

		select {
		case <-changed:
		case <-ctx.Done():
			err := tracker.CancelBatch(context.WithoutCancel(ctx))
			return watchOutcome{cancelled: true, cancelErr: err}
		}
	}
}

// watchInteractive shows the progress view until the batch finishes or the user leaves it
func watchInteractive(ctx context.Context, tracker *comment.Tracker) (watchOutcome, error) {
	changed, unsubscribe := watchChanges(tracker)
	defer unsubscribe()

	p := tea.NewProgram(newWatchModel(tracker.Snapshot(), tracker.CancelBatch), tea.WithContext(ctx))
	stop := make(chan struct{})
	go forwardSnapshots(stop, changed, tracker.Snapshot, p.Send)

	final, err := p.Run()
	close(stop)
	if ctx.Err() != nil {
		cancelErr := tracker.CancelBatch(context.WithoutCancel(ctx))
		return watchOutcome{cancelled: true, cancelErr: cancelErr}, nil
	}
	if err != nil {
		return watchOutcome{}, fmt.Errorf("progress view failed: %w", err)
	}

	m := final.(watchModel)
	if m.detached {
		tracker.StopPolling()
	}
	return watchOutcome{detached: m.detached, cancelled: m.cancelled, cancelErr: m.cancelErr}, nil
}

type snapshotMsg comment.Snapshot

type cancelDoneMsg struct{ err error }

type watchModel struct {
	snap     comment.Snapshot
	cancel   func(context.Context) error
	progress progress.Model
	spinner  spinner.Model

	cancelling bool
	cancelled  bool
	cancelErr  error
	detached   bool
}

func newWatchModel(snap comment.Snapshot, cancel func(context.Context) error) watchModel {
	return watchModel{
		snap:     snap,
		cancel:   cancel,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40), progress.WithoutPercentage()),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

func (m watchModel) Init() tea.Cmd {
	if finished(m.snap) {
		return tea.Quit
	}
	return m.spinner.Tick
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.progress.Width = max(10, min(msg.Width-10, 60))
		return m, nil

	case snapshotMsg:
		m.snap = comment.Snapshot(msg)
		if finished(m.snap) {
			m.cancelled = m.cancelled || m.snap.State == comment.StateCancelled
			return m, tea.Quit
		}
		return m, nil

	case cancelDoneMsg:
		m.cancelling = false
		m.cancelled = true
		m.cancelErr = msg.err
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "c", "ctrl+c":
			if m.cancelling {
				return m, nil
			}
			m.cancelling = true
			return m, cancelCmd(m.cancel)
		case "q", "esc":
			m.detached = true
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func cancelCmd(cancel func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return cancelDoneMsg{err: cancel(context.Background())}
	}
}

func (m watchModel) View() string {
	var b strings.Builder

	b.WriteString(watchTitleStyle.Render("Batch " + m.snap.BatchID))
	b.WriteString("\n\n")
	b.WriteString(m.progress.ViewAs(float64(m.snap.Percent()) / 100))
	fmt.Fprintf(&b, " %3d%%\n", m.snap.Percent())

	if st := m.snap.Status; st != nil {
		fmt.Fprintf(&b, "%s/%s done  %s  %s\n",
			humanize.Comma(int64(st.Completed)),
			humanize.Comma(int64(st.Total)),
			watchOKStyle.Render(humanize.Comma(int64(st.Success))+" ok"),
			watchErrorStyle.Render(humanize.Comma(int64(st.Failed))+" failed"),
		)
	}
	b.WriteString("\n")

	switch {
	case m.cancelling:
		b.WriteString(m.spinner.View() + " cancelling...\n")
	case m.snap.State == comment.StateStalled:
		b.WriteString(watchErrorStyle.Render(fmt.Sprintf("status unavailable after %d attempts", m.snap.Failures)) + "\n")
	case m.snap.State == comment.StateCompleted:
		b.WriteString(watchOKStyle.Render("done") + "\n")
	case m.snap.Failures > 0:
		fmt.Fprintf(&b, "%s sending comments (status check failed %d/%d)\n", m.spinner.View(), m.snap.Failures, comment.FailureThreshold)
	default:
		b.WriteString(m.spinner.View() + " sending comments\n")
	}

	b.WriteString(watchMutedStyle.Render("c cancel batch   q stop watching"))
	b.WriteString("\n")
	return b.String()
}
