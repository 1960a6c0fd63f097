package source

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"guildwatch/internal/watch"
	logx "guildwatch/pkg/logx"
)

// RosterClient fetches the guild roster page.
type RosterClient struct {
	url    string
	layout RosterLayout
	f      *fetcher
}

func NewRosterClient(url string, layout RosterLayout, cfg Config, log logx.Logger) *RosterClient {
	return &RosterClient{url: url, layout: layout, f: newFetcher(cfg, log)}
}

// FetchRoster implements watch.RosterSource.
func (c *RosterClient) FetchRoster(ctx context.Context) (watch.Snapshot, error) {
	doc, err := c.f.document(ctx, c.url)
	if err != nil {
		return nil, err
	}
	snap := parseRoster(doc, c.layout)
	if len(snap) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyRoster, c.url)
	}
	return snap, nil
}

// ParseRoster reads a roster page. Rows with a blank name or no leading
// digits in the level cell are skipped.
func ParseRoster(r io.Reader, layout RosterLayout) (watch.Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	snap := parseRoster(doc, layout)
	if len(snap) == 0 {
		return nil, ErrEmptyRoster
	}
	return snap, nil
}

func parseRoster(doc *goquery.Document, layout RosterLayout) watch.Snapshot {
	snap := watch.Snapshot{}
	doc.Find(layout.RowSelector).Each(func(_ int, row *goquery.Selection) {
		cs := cells(row)
		name, ok := cell(cs, layout.NameColumn)
		if !ok || name == "" {
			return
		}
		raw, ok := cell(cs, layout.LevelColumn)
		if !ok {
			return
		}
		level, ok := leadingInt(raw)
		if !ok {
			return
		}
		snap[name] = level
	})
	return snap
}

// leadingInt parses the leading run of digits as a non-negative level,
// ignoring whatever follows ("123 (+2)" is 123). Signed values are rejected.
func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
