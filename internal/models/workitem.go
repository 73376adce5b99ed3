package models

import "time"

// Market classifications in fixed priority order, plus the fallback.
const (
	MarketFEC   = "FE&C"
	MarketFBT   = "FB&T"
	MarketCT    = "C&T"
	MarketOther = "Other"
)

// WorkItem is the enriched output entity served to the table frontend.
// JSON field names match the existing frontend contract.
type WorkItem struct {
	SlNo         int       `json:"slNo"`
	ID           int       `json:"id"`
	Title        string    `json:"title"`
	CreatedDate  time.Time `json:"createdDate"`
	ResponseTime string    `json:"responseTime,omitempty"`
	Market       string    `json:"market"`
	URL          string    `json:"url"`
}

// WorkItemDetail is the raw per-item record returned by the detail-batch
// capability, before enrichment.
type WorkItemDetail struct {
	ID          int
	Title       string
	CreatedDate time.Time
	Tags        string
	URL         string
}

// Comment is one entry of an item's comment thread. Comments are transient:
// fetched per item, filtered, and discarded once the response-time metric is
// derived.
type Comment struct {
	Text        string
	CreatedDate time.Time
}
