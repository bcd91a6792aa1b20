package jobfeed

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Entry は採用フィードの1エントリを求人の下書きとして表す。
type Entry struct {
	ExternalRef string
	Title       string
	Link        string
	Description string
	Category    string
	Location    string
	PublishedAt *time.Time
}

// ParseEntries はRSS/Atomのボディを解析し、求人として取り込めるエントリを返す。
// GUIDもリンクも持たないエントリは同一性を判定できないため除外する。
func ParseEntries(body []byte) ([]Entry, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse careers feed: %w", err)
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		e := Entry{
			ExternalRef: strings.TrimSpace(item.GUID),
			Title:       strings.TrimSpace(item.Title),
			Link:        strings.TrimSpace(item.Link),
			Description: item.Content,
		}
		if e.Description == "" {
			e.Description = item.Description
		}
		if e.ExternalRef == "" {
			e.ExternalRef = e.Link
		}
		if e.ExternalRef == "" || e.Title == "" {
			continue
		}
		if len(item.Categories) > 0 {
			e.Category = strings.TrimSpace(item.Categories[0])
		}
		e.Location = customValue(item, "location")
		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			e.PublishedAt = &t
		} else if item.UpdatedParsed != nil {
			t := *item.UpdatedParsed
			e.PublishedAt = &t
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// customValue はRSSの拡張要素（<job:location> など）から値を取り出す。
func customValue(item *gofeed.Item, name string) string {
	if v, ok := item.Custom[name]; ok {
		return strings.TrimSpace(v)
	}
	for _, exts := range item.Extensions {
		if values, ok := exts[name]; ok && len(values) > 0 {
			return strings.TrimSpace(values[0].Value)
		}
	}
	return ""
}
