package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	logx "guildwatch/pkg/logx"
)

// fetcher performs bounded GETs and hands back a parsed document.
type fetcher struct {
	client *http.Client
	ua     string
	log    logx.Logger
}

func newFetcher(cfg Config, log logx.Logger) *fetcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := cfg.Client
	if c == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		c = &http.Client{Timeout: timeout}
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	return &fetcher{client: c, ua: ua, log: log}
}

func (f *fetcher) document(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: GET %s: %s", ErrHTTPStatus, url, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	f.log.Trace("page fetched", logx.String("url", url), logx.Duration("took", time.Since(start)))
	return doc, nil
}

// cells returns the trimmed text of each td in a row.
func cells(row *goquery.Selection) []string {
	tds := row.Find("td")
	out := make([]string, 0, tds.Length())
	tds.Each(func(_ int, td *goquery.Selection) {
		out = append(out, strings.TrimSpace(td.Text()))
	})
	return out
}

func cell(cs []string, i int) (string, bool) {
	if i < 0 || i >= len(cs) {
		return "", false
	}
	return cs[i], true
}
