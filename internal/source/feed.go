package source

import (
	"context"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"guildwatch/internal/watch"
	logx "guildwatch/pkg/logx"
)

// FeedClient fetches the recent deaths page.
type FeedClient struct {
	url    string
	layout FeedLayout
	f      *fetcher
}

func NewFeedClient(url string, layout FeedLayout, cfg Config, log logx.Logger) *FeedClient {
	return &FeedClient{url: url, layout: layout, f: newFetcher(cfg, log)}
}

// FetchFeed implements watch.FeedSource. An empty feed is not an error.
func (c *FeedClient) FetchFeed(ctx context.Context) ([]watch.EventRecord, error) {
	doc, err := c.f.document(ctx, c.url)
	if err != nil {
		return nil, err
	}
	return parseFeed(doc, c.layout), nil
}

// ParseFeed reads a feed page in row order.
func ParseFeed(r io.Reader, layout FeedLayout) ([]watch.EventRecord, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	return parseFeed(doc, layout), nil
}

func parseFeed(doc *goquery.Document, layout FeedLayout) []watch.EventRecord {
	sep := layout.NameSeparator
	if sep == "" {
		sep = ": "
	}
	var out []watch.EventRecord
	doc.Find(layout.RowSelector).Each(func(i int, row *goquery.Selection) {
		if i == 0 && layout.SkipHeader {
			return
		}
		cs := cells(row)
		targetRaw, ok1 := cell(cs, layout.TargetColumn)
		ts, ok2 := cell(cs, layout.TimestampColumn)
		actorRaw, ok3 := cell(cs, layout.ActorColumn)
		if !ok1 || !ok2 || !ok3 {
			return
		}
		target, ok1 := nameAfter(targetRaw, sep)
		actor, ok2 := nameAfter(actorRaw, sep)
		if !ok1 || !ok2 {
			return
		}
		out = append(out, watch.EventRecord{Actor: actor, Target: target, Timestamp: ts})
	})
	return out
}

// nameAfter returns the trimmed text following the first sep in s.
func nameAfter(s, sep string) (string, bool) {
	_, after, found := strings.Cut(s, sep)
	if !found {
		return "", false
	}
	after = strings.TrimSpace(after)
	return after, after != ""
}
