package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/kurihiro0119/bili-comment/internal/domain"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	return table
}

// truncate shortens s to at most n runes
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func renderVideos(videos []domain.Video, isSelected func(string) bool) {
	table := newTable("#", "", "BVID", "Title", "Author", "Plays", "Danmaku", "Published")
	for i, v := range videos {
		mark := ""
		if isSelected != nil && isSelected(v.BVID) {
			mark = "*"
		}
		published := ""
		if v.PubDate > 0 {
			published = humanize.Time(time.Unix(v.PubDate, 0))
		}
		table.Append([]string{
			strconv.Itoa(i + 1),
			mark,
			v.BVID,
			truncate(v.Title, 40),
			truncate(v.Author, 16),
			humanize.Comma(v.Play),
			humanize.Comma(v.Danmaku),
			published,
		})
	}
	table.Render()
}

func renderTemplates(templates []domain.CommentTemplate) {
	table := newTable("ID", "Name", "Content", "Updated")
	for _, t := range templates {
		table.Append([]string{
			t.ID,
			t.Name,
			truncate(t.Content, 50),
			humanize.Time(time.Unix(t.UpdatedAt, 0)),
		})
	}
	table.Render()
}

func renderBatch(st *domain.BatchStatus) {
	fmt.Printf("Batch %s: %s/%s done, %s succeeded, %s failed\n\n",
		st.BatchID,
		humanize.Comma(int64(st.Completed)),
		humanize.Comma(int64(st.Total)),
		humanize.Comma(int64(st.Success)),
		humanize.Comma(int64(st.Failed)),
	)

	table := newTable("#", "BVID", "Title", "Status", "Message")
	for i, job := range st.Tasks {
		table.Append([]string{
			strconv.Itoa(i + 1),
			job.Video.BVID,
			truncate(job.Video.Title, 40),
			string(job.Status),
			job.ErrorMessage,
		})
	}
	table.Render()
}
