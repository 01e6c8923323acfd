package adapter

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mmcdole/gofeed"

	"procurepulse/aggregator-service/internal/model"
)

// rssFeed is one feed endpoint belonging to an RSS-backed source. Each
// feed covers exactly one jurisdiction.
type rssFeed struct {
	URL   string
	State string // 2-letter code
}

// rssItemMapper converts one feed item into a raw record. Returning an
// error skips just that item (counted as a parse error).
type rssItemMapper func(item *gofeed.Item, state string) (model.RawRecord, error)

// rssAdapter fetches one or more state-scoped RSS feeds and maps their
// items through a source-specific mapper.
type rssAdapter struct {
	name    string
	feeds   []rssFeed
	mapItem rssItemMapper
	fetch   *fetcher
	parser  *gofeed.Parser
}

func newRSSAdapter(name string, feeds []rssFeed, mapItem rssItemMapper) *rssAdapter {
	return &rssAdapter{
		name:    name,
		feeds:   feeds,
		mapItem: mapItem,
		fetch:   newFetcher(),
		parser:  gofeed.NewParser(),
	}
}

func (a *rssAdapter) Name() string { return a.name }

func (a *rssAdapter) Fetch(ctx context.Context, filter Filter) ([]model.RawRecord, model.AdapterReport) {
	report := model.NewAdapterReport()
	start := time.Now()
	var records []model.RawRecord

	for _, feed := range a.feeds {
		if !filter.Allows(feed.State) {
			continue
		}

		body, err := a.fetch.get(ctx, feed.URL)
		if err != nil {
			log.Printf("[adapter:%s] fetch %s: %v — skipping feed", a.name, feed.URL, err)
			report.AddError(Categorize(err))
			continue
		}

		parsed, err := a.parser.ParseString(string(body))
		if err != nil {
			log.Printf("[adapter:%s] parse feed %s: %v — skipping feed", a.name, feed.URL, err)
			report.AddError(ErrCategoryParse)
			continue
		}

		for _, item := range parsed.Items {
			if item == nil {
				report.AddError(ErrCategoryParse)
				continue
			}
			rec, err := a.mapItem(item, feed.State)
			if err != nil {
				log.Printf("[adapter:%s] item %q: %v — skipped", a.name, item.Title, err)
				report.AddError(ErrCategoryParse)
				continue
			}
			records = append(records, rec)
			report.Fetched++
		}
	}

	report.Elapsed = time.Since(start)
	return records, report
}

// errMissingTitle is shared by item mappers; a posting without a title is
// unusable downstream.
var errMissingTitle = fmt.Errorf("item has no title")
