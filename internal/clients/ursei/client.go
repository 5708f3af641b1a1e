// Package ursei fetches group schedules from the university timetable service.
package ursei

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/sync/errgroup"

	"github.com/tazhate/studentbot/internal/domain"
)

const (
	DefaultAPIURL    = "https://api.ursei.su/public/schedule/rest/GetGsSched"
	DefaultLegacyURL = "https://ursei.su/asu/ssched.php"

	SourceAPI    = "api"
	SourceLegacy = "legacy"

	maxParallel = 4
)

// Client loads schedules either from the JSON API or from the legacy HTML page.
// Failures never surface as Go errors: they become error entries in the result.
type Client struct {
	apiURL     string
	legacyURL  string
	source     string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a client. Empty URLs fall back to the public endpoints.
func NewClient(apiURL, legacyURL, source string, timeout time.Duration) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if legacyURL == "" {
		legacyURL = DefaultLegacyURL
	}
	if source != SourceLegacy {
		source = SourceAPI
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiURL:    apiURL,
		legacyURL: legacyURL,
		source:    source,
		timeout:   timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchAll fetches every group concurrently. The result keeps the order of ids.
func (c *Client) FetchAll(ctx context.Context, ids []string) domain.Schedule {
	out := make(domain.Schedule, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, id := range ids {
		g.Go(func() error {
			out[i] = c.Fetch(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// Fetch loads one group's schedule and validates it.
func (c *Client) Fetch(ctx context.Context, groupID string) domain.GroupSchedule {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return domain.Failed("group id is empty")
	}

	var (
		gs  domain.GroupSchedule
		err error
	)
	if c.source == SourceLegacy {
		gs, err = c.fetchLegacy(ctx, groupID)
	} else {
		gs, err = c.fetchAPI(ctx, groupID)
	}
	if err != nil {
		log.Printf("Schedule fetch for group %s failed: %v", groupID, err)
		return domain.Failedf("failed to load schedule for group %s: %v", groupID, err)
	}

	if err := gs.Validate(); err != nil {
		log.Printf("Invalid schedule for group %s: %v", groupID, err)
		return domain.Failedf("invalid schedule structure for group %s", groupID)
	}
	return gs
}

func (c *Client) fetchAPI(ctx context.Context, groupID string) (domain.GroupSchedule, error) {
	u := c.apiURL + "?grpid=" + url.QueryEscape(groupID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.GroupSchedule{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/html")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GroupSchedule{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.GroupSchedule{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.GroupSchedule{}, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return decode(body)
}

// fetchLegacy scrapes the old timetable page. It still accepts JSON bodies,
// which the page returns for some groups.
func (c *Client) fetchLegacy(ctx context.Context, groupID string) (domain.GroupSchedule, error) {
	collector := colly.NewCollector(colly.StdlibContext(ctx))
	collector.SetRequestTimeout(c.timeout)

	var (
		result  domain.GroupSchedule
		decoded bool
		tables  []*goquery.Selection
		failure error
	)

	collector.OnResponse(func(r *colly.Response) {
		if len(bytes.TrimSpace(r.Body)) == 0 {
			failure = fmt.Errorf("empty response")
			return
		}
		if gs, err := decodeJSON(r.Body); err == nil {
			result, decoded = gs, true
		}
	})
	collector.OnHTML("table", func(e *colly.HTMLElement) {
		tables = append(tables, e.DOM)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			failure = fmt.Errorf("HTTP %d", r.StatusCode)
			return
		}
		failure = err
	})

	err := collector.Visit(c.legacyURL + "?group=" + url.QueryEscape(groupID))
	if failure != nil {
		return domain.GroupSchedule{}, failure
	}
	if err != nil {
		return domain.GroupSchedule{}, err
	}
	if decoded {
		return result, nil
	}
	if len(tables) == 0 {
		return domain.GroupSchedule{}, fmt.Errorf("no schedule table in page")
	}

	var sel *goquery.Selection
	for _, t := range tables {
		if sel == nil {
			sel = t
			continue
		}
		sel = sel.AddSelection(t)
	}
	return parseTables(sel), nil
}

// decode accepts the API JSON document and falls back to an HTML table.
func decode(body []byte) (domain.GroupSchedule, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return domain.GroupSchedule{}, fmt.Errorf("empty response")
	}
	if gs, err := decodeJSON(body); err == nil {
		return gs, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return domain.GroupSchedule{}, fmt.Errorf("parse html: %w", err)
	}
	tables := doc.Find("table")
	if tables.Length() == 0 {
		return domain.GroupSchedule{}, fmt.Errorf("response is neither JSON nor a schedule table")
	}
	return parseTables(tables), nil
}

func decodeJSON(body []byte) (domain.GroupSchedule, error) {
	var gs domain.GroupSchedule
	if err := json.Unmarshal(body, &gs); err != nil {
		return domain.GroupSchedule{}, err
	}
	return gs, nil
}
