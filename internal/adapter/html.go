package adapter

import (
	"bytes"
	"context"
	"log"
	"time"

	"github.com/PuerkitoBio/goquery"

	"procurepulse/aggregator-service/internal/model"
)

// htmlPage is one scraped portal page covering a single jurisdiction.
type htmlPage struct {
	URL   string
	State string
}

// htmlRowParser turns one selected row into a raw record. An error skips
// just that row (counted as a parse error); portals routinely mix header,
// spacer, and malformed rows into the same table.
type htmlRowParser func(row *goquery.Selection, state string) (model.RawRecord, error)

// htmlAdapter scrapes static listing pages with a CSS row selector and a
// source-specific row parser.
type htmlAdapter struct {
	name        string
	pages       []htmlPage
	rowSelector string
	parseRow    htmlRowParser
	fetch       *fetcher
}

func newHTMLAdapter(name string, pages []htmlPage, rowSelector string, parseRow htmlRowParser) *htmlAdapter {
	return &htmlAdapter{
		name:        name,
		pages:       pages,
		rowSelector: rowSelector,
		parseRow:    parseRow,
		fetch:       newFetcher(),
	}
}

func (a *htmlAdapter) Name() string { return a.name }

func (a *htmlAdapter) Fetch(ctx context.Context, filter Filter) ([]model.RawRecord, model.AdapterReport) {
	report := model.NewAdapterReport()
	start := time.Now()
	var records []model.RawRecord

	for _, page := range a.pages {
		if !filter.Allows(page.State) {
			continue
		}

		body, err := a.fetch.get(ctx, page.URL)
		if err != nil {
			log.Printf("[adapter:%s] fetch %s: %v — skipping page", a.name, page.URL, err)
			report.AddError(Categorize(err))
			continue
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			log.Printf("[adapter:%s] parse %s: %v — skipping page", a.name, page.URL, err)
			report.AddError(ErrCategoryParse)
			continue
		}

		doc.Find(a.rowSelector).Each(func(_ int, row *goquery.Selection) {
			rec, err := a.parseRow(row, page.State)
			if err != nil {
				report.AddError(ErrCategoryParse)
				return
			}
			records = append(records, rec)
			report.Fetched++
		})
	}

	report.Elapsed = time.Since(start)
	return records, report
}
