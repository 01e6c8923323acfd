package adapter

import (
	"context"
	"log"
	"time"

	"procurepulse/aggregator-service/internal/model"
)

// jsonEndpoint is one paginated JSON search endpoint. State may be empty
// for multi-jurisdiction APIs whose records carry their own state; those
// endpoints are always fetched and the normalizer filters afterwards.
type jsonEndpoint struct {
	State string
	// PageURL renders the request URL for a 1-based page number.
	PageURL func(page int) string
}

// jsonDecoder unmarshals one response body into raw records. Item-level
// oddities should be tolerated inside the decoder (skip the item); a
// returned error means the whole payload was unusable.
type jsonDecoder func(body []byte, state string) ([]model.RawRecord, error)

// jsonAdapter walks a paginated JSON API, page by page, until a page comes
// back empty or short, or maxPages is reached.
type jsonAdapter struct {
	name      string
	endpoints []jsonEndpoint
	decode    jsonDecoder
	pageSize  int
	maxPages  int
	fetch     *fetcher
}

func newJSONAdapter(name string, endpoints []jsonEndpoint, decode jsonDecoder, pageSize, maxPages int) *jsonAdapter {
	return &jsonAdapter{
		name:      name,
		endpoints: endpoints,
		decode:    decode,
		pageSize:  pageSize,
		maxPages:  maxPages,
		fetch:     newFetcher(),
	}
}

func (a *jsonAdapter) Name() string { return a.name }

func (a *jsonAdapter) Fetch(ctx context.Context, filter Filter) ([]model.RawRecord, model.AdapterReport) {
	report := model.NewAdapterReport()
	start := time.Now()
	var records []model.RawRecord

	for _, ep := range a.endpoints {
		if ep.State != "" && !filter.Allows(ep.State) {
			continue
		}

		for page := 1; page <= a.maxPages; page++ {
			url := ep.PageURL(page)

			body, err := a.fetch.get(ctx, url)
			if err != nil {
				log.Printf("[adapter:%s] fetch %s: %v — abandoning endpoint", a.name, url, err)
				report.AddError(Categorize(err))
				break
			}

			batch, err := a.decode(body, ep.State)
			if err != nil {
				log.Printf("[adapter:%s] decode page %d: %v — abandoning endpoint", a.name, page, err)
				report.AddError(ErrCategoryParse)
				break
			}
			if len(batch) == 0 {
				break // no more results
			}

			records = append(records, batch...)
			report.Fetched += len(batch)

			if len(batch) < a.pageSize {
				break // last page
			}
		}
	}

	report.Elapsed = time.Since(start)
	return records, report
}
