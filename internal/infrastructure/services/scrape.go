package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"IssueSync/internal/config"
	"IssueSync/internal/domain"
	"IssueSync/internal/service"
)

const scrapeService = "scrape"

// Scrape task fields.
const (
	ScrapeURL     = "scrapeurl"
	ScrapeTitle   = "scrapetitle"
	ScrapeSummary = "scrapesummary"
	ScrapeDate    = "scrapedate"
	ScrapeSource  = "scrapesource"
)

type scrapeOptions struct {
	URL             string `mapstructure:"url"`
	ItemSelector    string `mapstructure:"item_selector"`
	TitleSelector   string `mapstructure:"title_selector"`
	LinkSelector    string `mapstructure:"link_selector"`
	SummarySelector string `mapstructure:"summary_selector"`
	DateSelector    string `mapstructure:"date_selector"`
	DateLayout      string `mapstructure:"date_layout"`
	NextSelector    string `mapstructure:"next_selector"`
	MaxPages        int    `mapstructure:"max_pages"`
}

// ScrapeDescriptor registers the HTML listing adapter. Each element matched
// by item_selector on the page becomes one issue keyed by its link.
func ScrapeDescriptor() service.Descriptor {
	return service.Descriptor{
		Name: scrapeService,
		Properties: map[string]any{
			"url":              map[string]any{"type": "string", "pattern": "^https?://"},
			"item_selector":    config.StringSchema(),
			"title_selector":   config.StringSchema(),
			"link_selector":    config.StringSchema(),
			"summary_selector": config.StringSchema(),
			"date_selector":    config.StringSchema(),
			"date_layout":      config.StringSchema(),
			"next_selector":    config.StringSchema(),
			"max_pages":        config.IntSchema(),
		},
		Required: []string{"url", "item_selector"},
		Defaults: map[string]any{
			"title_selector": "a",
			"link_selector":  "a",
			"date_layout":    time.DateOnly,
			"max_pages":      1,
		},
		UniqueKeys: []domain.KeyGroup{{ScrapeURL}},
		UDAs: map[string]domain.UDA{
			ScrapeURL:     {Type: "string", Label: "Item URL"},
			ScrapeTitle:   {Type: "string", Label: "Item Title"},
			ScrapeSummary: {Type: "string", Label: "Item Summary"},
			ScrapeDate:    {Type: "date", Label: "Item Date"},
			ScrapeSource:  {Type: "string", Label: "Listing Page"},
		},
		New: newScrape,
	}
}

// Scrape crawls a listing page, following next links up to max_pages.
type Scrape struct {
	env  service.Env
	opts scrapeOptions
}

func newScrape(env service.Env) (service.Service, error) {
	var opts scrapeOptions
	if err := env.Config.Decode(&opts); err != nil {
		return nil, err
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 1
	}
	if opts.DateLayout == "" {
		opts.DateLayout = time.DateOnly
	}
	return &Scrape{env: env, opts: opts}, nil
}

type scrapedItem struct {
	link    string
	title   string
	summary string
	date    any
}

// Issues walks the listing pages and yields every item with a link.
func (s *Scrape) Issues(ctx context.Context, yield func(service.Issue) error) error {
	pageURL := s.opts.URL
	seen := map[string]struct{}{}

	for page := 0; page < s.opts.MaxPages && pageURL != ""; page++ {
		base, err := url.Parse(pageURL)
		if err != nil {
			return fmt.Errorf("invalid page url %s: %w", pageURL, err)
		}

		doc, err := s.fetchDocument(ctx, pageURL)
		if err != nil {
			return fmt.Errorf("page %s: %w", pageURL, err)
		}

		for _, item := range s.extractItems(doc, base) {
			if _, ok := seen[item.link]; ok {
				continue
			}
			seen[item.link] = struct{}{}
			if err := yield(s.issue(ctx, item, pageURL)); err != nil {
				return err
			}
		}

		pageURL = s.nextPage(doc, base)
	}
	return nil
}

func (s *Scrape) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.env.HTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func (s *Scrape) extractItems(doc *goquery.Document, base *url.URL) []scrapedItem {
	var items []scrapedItem
	doc.Find(s.opts.ItemSelector).Each(func(_ int, sel *goquery.Selection) {
		item, ok := s.parseItem(sel, base)
		if !ok {
			s.env.Log().Debug("skipping item without link")
			return
		}
		items = append(items, item)
	})
	return items
}

func (s *Scrape) parseItem(sel *goquery.Selection, base *url.URL) (scrapedItem, bool) {
	href, ok := sel.Find(s.opts.LinkSelector).First().Attr("href")
	if !ok && goquery.NodeName(sel) == "a" {
		href, ok = sel.Attr("href")
	}
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return scrapedItem{}, false
	}

	link := resolve(base, href)
	title := strings.Join(strings.Fields(sel.Find(s.opts.TitleSelector).First().Text()), " ")
	if title == "" {
		title = link
	}

	item := scrapedItem{link: link, title: title}
	if s.opts.SummarySelector != "" {
		item.summary = strings.TrimSpace(sel.Find(s.opts.SummarySelector).First().Text())
	}
	if s.opts.DateSelector != "" {
		dateText := strings.TrimSpace(sel.Find(s.opts.DateSelector).First().Text())
		if parsed, err := time.Parse(s.opts.DateLayout, dateText); err == nil {
			item.date = parsed.UTC()
		}
	}
	return item, true
}

func (s *Scrape) nextPage(doc *goquery.Document, base *url.URL) string {
	if s.opts.NextSelector == "" {
		return ""
	}
	href, ok := doc.Find(s.opts.NextSelector).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	return resolve(base, strings.TrimSpace(href))
}

func (s *Scrape) issue(ctx context.Context, item scrapedItem, pageURL string) service.Issue {
	record := domain.Issue{
		domain.FieldPriority:    s.env.Config.DefaultPriority,
		domain.FieldTags:        []string{},
		domain.FieldAnnotations: nonNil(s.env.Annotations(ctx, nil, item.link)),
		ScrapeURL:               item.link,
		ScrapeTitle:             item.title,
		ScrapeSummary:           optional(item.summary),
		ScrapeDate:              item.date,
		ScrapeSource:            pageURL,
	}

	description := s.env.Description(ctx, item.title, item.link, itemNumber(item.link), service.ClassTodo)
	return service.NewIssue(record, description, map[string]any{"page": pageURL})
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// itemNumber is the last path segment of an item link.
func itemNumber(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return ""
	}
	segment := path.Base(strings.TrimSuffix(parsed.Path, "/"))
	if segment == "." || segment == "/" {
		return ""
	}
	return segment
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
