package adapter

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"procurepulse/aggregator-service/internal/model"
)

// All returns every configured source adapter. samAPIKey gates the federal
// SAM.gov source: without a key the adapter is omitted entirely rather
// than left in to trip zero-results alerts every run.
func All(samAPIKey string) []Adapter {
	adapters := []Adapter{
		newNYContractReporter(),
		newPAEMarketplace(),
		newTXESBD(),
		newCAeProcure(),
		newFLVendorBid(),
		newWAWEBS(),
	}
	if samAPIKey != "" {
		adapters = append(adapters, newSAMGov(samAPIKey))
	} else {
		log.Println("[adapter:sam_gov] SAM_API_KEY not set — federal source disabled")
	}
	return adapters
}

// DefaultPriority orders sources for intra-run deduplication: state
// portals publish the authoritative posting, so they outrank the federal
// aggregate when both report the same solicitation in one run.
func DefaultPriority() []string {
	return []string{
		"tx_esbd",
		"ca_caleprocure",
		"ny_contract_reporter",
		"pa_emarketplace",
		"fl_vendor_bid",
		"wa_webs",
		"sam_gov",
	}
}

// dueDateRe pulls a due date out of free-text descriptions, e.g.
// "Bids due: 03/15/2025" or "Due Date: March 15, 2025".
var dueDateRe = regexp.MustCompile(`(?i)(?:bids?\s+)?due(?:\s+date)?:?\s*([A-Za-z]+ \d{1,2}, \d{4}|\d{1,2}[/-]\d{1,2}[/-]\d{4}|\d{4}-\d{2}-\d{2})`)

func extractDueDate(text string) string {
	if m := dueDateRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// ─── New York — NYS Contract Reporter (RSS) ──────────────────────────────

func newNYContractReporter() Adapter {
	feeds := []rssFeed{
		{URL: "https://www.nyscr.ny.gov/rss/adsRss.cfm?type=open", State: "NY"},
	}
	return newRSSAdapter("ny_contract_reporter", feeds, mapNYItem)
}

func mapNYItem(item *gofeed.Item, state string) (model.RawRecord, error) {
	if strings.TrimSpace(item.Title) == "" {
		return model.RawRecord{}, errMissingTitle
	}

	// The Contract Reporter encodes the ad number in the GUID, e.g.
	// "https://www.nyscr.ny.gov/ads/ad-detail.cfm?id=CR20250312".
	solNum := ""
	if item.GUID != "" {
		if u, err := url.Parse(item.GUID); err == nil {
			solNum = u.Query().Get("id")
		}
	}

	agency := ""
	if item.Author != nil {
		agency = item.Author.Name
	}

	return model.RawRecord{
		Title:              item.Title,
		Description:        item.Description,
		State:              state,
		Agency:             agency,
		SolicitationNumber: solNum,
		DueDateRaw:         extractDueDate(item.Description),
		Link:               item.Link,
		OrganizationType:   "state agency",
	}, nil
}

// ─── Pennsylvania — eMarketplace (RSS) ───────────────────────────────────

func newPAEMarketplace() Adapter {
	feeds := []rssFeed{
		{URL: "https://www.emarketplace.state.pa.us/Search.aspx?rss=1&status=open", State: "PA"},
	}
	return newRSSAdapter("pa_emarketplace", feeds, mapPAItem)
}

// paTitleRe matches the eMarketplace title convention
// "SOL-2025-0042 - Custodial Services, DGS".
var paTitleRe = regexp.MustCompile(`^([A-Z0-9-]+)\s+-\s+(.+)$`)

func mapPAItem(item *gofeed.Item, state string) (model.RawRecord, error) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return model.RawRecord{}, errMissingTitle
	}

	solNum := ""
	if m := paTitleRe.FindStringSubmatch(title); m != nil {
		solNum = m[1]
		title = strings.TrimSpace(m[2])
	}

	agency := ""
	if len(item.Categories) > 0 {
		agency = item.Categories[0]
	}

	return model.RawRecord{
		Title:              title,
		Description:        item.Description,
		State:              state,
		Agency:             agency,
		SolicitationNumber: solNum,
		DueDateRaw:         extractDueDate(item.Description),
		Link:               item.Link,
		OrganizationType:   "state agency",
	}, nil
}

// ─── Texas — SmartBuy ESBD (JSON) ────────────────────────────────────────

const (
	txESBDPageSize = 50
	txESBDMaxPages = 5
)

type txESBDResponse struct {
	Results []txESBDResult `json:"results"`
	Total   int            `json:"total"`
}

type txESBDResult struct {
	SolicitationID string `json:"solicitationId"`
	Title          string `json:"title"`
	AgencyName     string `json:"agencyName"`
	ResponseDueAt  string `json:"responseDueDate"`
	Description    string `json:"description"`
	DetailURL      string `json:"detailUrl"`
	ClassItemCode  string `json:"classItemCode"`
}

func newTXESBD() Adapter {
	endpoints := []jsonEndpoint{
		{
			State: "TX",
			PageURL: func(page int) string {
				return fmt.Sprintf("https://www.txsmartbuy.gov/esbddata/search?status=open&rows=%d&page=%d", txESBDPageSize, page)
			},
		},
	}
	return newJSONAdapter("tx_esbd", endpoints, decodeTXESBD, txESBDPageSize, txESBDMaxPages)
}

func decodeTXESBD(body []byte, state string) ([]model.RawRecord, error) {
	var resp txESBDResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}

	records := make([]model.RawRecord, 0, len(resp.Results))
	for _, r := range resp.Results {
		records = append(records, model.RawRecord{
			Title:              r.Title,
			Description:        r.Description,
			State:              state,
			Agency:             r.AgencyName,
			SolicitationNumber: r.SolicitationID,
			DueDateRaw:         r.ResponseDueAt,
			Link:               r.DetailURL,
			OrganizationType:   "state agency",
			ClassificationCode: r.ClassItemCode,
		})
	}
	return records, nil
}

// ─── California — Cal eProcure (JSON) ────────────────────────────────────

const (
	caEProcurePageSize = 100
	caEProcureMaxPages = 3
)

type caEProcureResponse struct {
	Events []caEProcureEvent `json:"events"`
}

type caEProcureEvent struct {
	EventID     string `json:"eventId"`
	EventName   string `json:"eventName"`
	Department  string `json:"department"`
	EndDate     string `json:"endDate"`
	Description string `json:"eventDescription"`
	UNSPSC      string `json:"unspscCode"`
}

func newCAeProcure() Adapter {
	endpoints := []jsonEndpoint{
		{
			State: "CA",
			PageURL: func(page int) string {
				return fmt.Sprintf("https://caleprocure.ca.gov/api/events?status=active&pageSize=%d&page=%d", caEProcurePageSize, page)
			},
		},
	}
	return newJSONAdapter("ca_caleprocure", endpoints, decodeCAeProcure, caEProcurePageSize, caEProcureMaxPages)
}

func decodeCAeProcure(body []byte, state string) ([]model.RawRecord, error) {
	var resp caEProcureResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}

	records := make([]model.RawRecord, 0, len(resp.Events))
	for _, e := range resp.Events {
		link := ""
		if e.EventID != "" {
			link = "https://caleprocure.ca.gov/event/" + url.PathEscape(e.EventID)
		}
		records = append(records, model.RawRecord{
			Title:              e.EventName,
			Description:        e.Description,
			State:              state,
			Agency:             e.Department,
			SolicitationNumber: e.EventID,
			DueDateRaw:         e.EndDate,
			Link:               link,
			OrganizationType:   "state agency",
			ClassificationCode: e.UNSPSC,
		})
	}
	return records, nil
}

// ─── Federal — SAM.gov opportunities (JSON, multi-state) ─────────────────

const (
	samGovPageSize = 100
	samGovMaxPages = 5
)

type samGovResponse struct {
	Opportunities []samGovOpportunity `json:"opportunitiesData"`
}

type samGovOpportunity struct {
	NoticeID           string `json:"noticeId"`
	Title              string `json:"title"`
	SolicitationNumber string `json:"solicitationNumber"`
	Department         string `json:"fullParentPathName"`
	ResponseDeadline   string `json:"responseDeadLine"`
	NAICSCode          string `json:"naicsCode"`
	UILink             string `json:"uiLink"`
	Description        string `json:"description"`
	PlaceOfPerformance struct {
		State struct {
			Code string `json:"code"`
		} `json:"state"`
	} `json:"placeOfPerformance"`
}

func newSAMGov(apiKey string) Adapter {
	endpoints := []jsonEndpoint{
		{
			// State left empty: records span jurisdictions and carry their
			// own place-of-performance state.
			PageURL: func(page int) string {
				return fmt.Sprintf(
					"https://api.sam.gov/opportunities/v2/search?api_key=%s&ptype=o&limit=%d&offset=%d",
					url.QueryEscape(apiKey), samGovPageSize, (page-1)*samGovPageSize,
				)
			},
		},
	}
	return newJSONAdapter("sam_gov", endpoints, decodeSAMGov, samGovPageSize, samGovMaxPages)
}

func decodeSAMGov(body []byte, _ string) ([]model.RawRecord, error) {
	var resp samGovResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}

	records := make([]model.RawRecord, 0, len(resp.Opportunities))
	for _, o := range resp.Opportunities {
		solNum := o.SolicitationNumber
		if solNum == "" {
			solNum = o.NoticeID
		}
		records = append(records, model.RawRecord{
			Title:              o.Title,
			Description:        o.Description,
			State:              o.PlaceOfPerformance.State.Code,
			Agency:             o.Department,
			SolicitationNumber: solNum,
			DueDateRaw:         o.ResponseDeadline,
			Link:               o.UILink,
			OrganizationType:   "federal agency",
			ClassificationCode: o.NAICSCode,
		})
	}
	return records, nil
}

// ─── Florida — Vendor Bid System (HTML) ──────────────────────────────────

func newFLVendorBid() Adapter {
	pages := []htmlPage{
		{URL: "https://vendor.myfloridamarketplace.com/search/bids?status=open", State: "FL"},
	}
	return newHTMLAdapter("fl_vendor_bid", pages, "table.bid-search-results tbody tr", parseFLRow)
}

func parseFLRow(row *goquery.Selection, state string) (model.RawRecord, error) {
	cells := row.Find("td")
	if cells.Length() < 4 {
		return model.RawRecord{}, fmt.Errorf("expected at least 4 cells, got %d", cells.Length())
	}

	titleCell := cells.Eq(1)
	title := strings.TrimSpace(titleCell.Text())
	if title == "" {
		return model.RawRecord{}, errMissingTitle
	}

	link, _ := titleCell.Find("a").Attr("href")
	if link != "" && strings.HasPrefix(link, "/") {
		link = "https://vendor.myfloridamarketplace.com" + link
	}

	return model.RawRecord{
		Title:              title,
		State:              state,
		Agency:             strings.TrimSpace(cells.Eq(2).Text()),
		SolicitationNumber: strings.TrimSpace(cells.Eq(0).Text()),
		DueDateRaw:         strings.TrimSpace(cells.Eq(3).Text()),
		Link:               link,
		OrganizationType:   "state agency",
	}, nil
}

// ─── Washington — WEBS (HTML) ────────────────────────────────────────────

func newWAWEBS() Adapter {
	pages := []htmlPage{
		{URL: "https://pr-webs-vendor.des.wa.gov/Search/OpenBids", State: "WA"},
	}
	return newHTMLAdapter("wa_webs", pages, "table#openBids tr.bid-row", parseWARow)
}

func parseWARow(row *goquery.Selection, state string) (model.RawRecord, error) {
	cells := row.Find("td")
	if cells.Length() < 5 {
		return model.RawRecord{}, fmt.Errorf("expected at least 5 cells, got %d", cells.Length())
	}

	title := strings.TrimSpace(cells.Eq(2).Text())
	if title == "" {
		return model.RawRecord{}, errMissingTitle
	}

	link, _ := cells.Eq(2).Find("a").Attr("href")
	if link != "" && strings.HasPrefix(link, "/") {
		link = "https://pr-webs-vendor.des.wa.gov" + link
	}

	return model.RawRecord{
		Title:              title,
		State:              state,
		Agency:             strings.TrimSpace(cells.Eq(1).Text()),
		SolicitationNumber: strings.TrimSpace(cells.Eq(0).Text()),
		DueDateRaw:         strings.TrimSpace(cells.Eq(4).Text()),
		Link:               link,
		OrganizationType:   strings.TrimSpace(cells.Eq(3).Text()),
	}, nil
}
