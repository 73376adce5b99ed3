package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/opsdash/devops-inbox/backend/internal/models"
)

const detailFields = "System.Id,System.Title,System.CreatedDate,System.Tags"

// Client wraps the Azure DevOps work-item tracking REST API with helpers
// tailored to this project. Every call authenticates with Basic auth using an
// empty username and the personal access token as password.
type Client struct {
	http      *http.Client
	baseURL   string
	org       string
	project   string
	pat       string
	batchSize int
	log       *slog.Logger
}

// New instantiates the tracker client. baseURL is normally
// https://dev.azure.com; tests point it at a local fake.
func New(baseURL, org, project, pat string, batchSize int, logger *slog.Logger) *Client {
	if batchSize <= 0 {
		batchSize = 50
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		http:      &http.Client{},
		baseURL:   strings.TrimRight(baseURL, "/"),
		org:       org,
		project:   project,
		pat:       pat,
		batchSize: batchSize,
		log:       logger,
	}
}

// QueryWorkItemIDs runs a WIQL query for work items of the project in any of
// the given lifecycle states and returns the matching IDs. An empty result is
// valid and returns an empty slice.
func (c *Client) QueryWorkItemIDs(ctx context.Context, states []string) ([]int, error) {
	query := fmt.Sprintf(
		"SELECT [System.Id] FROM WorkItems WHERE [System.TeamProject] = '%s' AND [System.State] IN (%s)",
		escapeWiql(c.project), quoteList(states),
	)

	body := map[string]string{"query": query}
	endpoint := fmt.Sprintf("%s/%s/%s/_apis/wit/wiql?api-version=7.0",
		c.baseURL, url.PathEscape(c.org), url.PathEscape(c.project))

	var parsed struct {
		WorkItems []struct {
			ID int `json:"id"`
		} `json:"workItems"`
	}

	if err := c.postJSON(ctx, endpoint, body, &parsed); err != nil {
		return nil, fmt.Errorf("query work item ids: %w", err)
	}

	ids := make([]int, 0, len(parsed.WorkItems))
	for _, wi := range parsed.WorkItems {
		ids = append(ids, wi.ID)
	}

	c.log.Debug("wiql query done", slog.Int("matches", len(ids)))
	return ids, nil
}

// GetWorkItemDetails retrieves full field data for the given IDs. IDs are
// partitioned into contiguous groups no larger than the batch size and one
// request is issued per group, sequentially; the concatenated result keeps
// the per-batch response order and the batch submission order, so output
// order follows input order. A failing batch fails the whole call.
func (c *Client) GetWorkItemDetails(ctx context.Context, ids []int) ([]models.WorkItemDetail, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	details := make([]models.WorkItemDetail, 0, len(ids))

	for start := 0; start < len(ids); start += c.batchSize {
		end := start + c.batchSize
		if end > len(ids) {
			end = len(ids)
		}

		endpoint := fmt.Sprintf("%s/%s/%s/_apis/wit/workitems?ids=%s&fields=%s&api-version=7.0",
			c.baseURL, url.PathEscape(c.org), url.PathEscape(c.project),
			joinIDs(ids[start:end]), url.QueryEscape(detailFields))

		var parsed struct {
			Value []struct {
				ID     int    `json:"id"`
				URL    string `json:"url"`
				Fields struct {
					Title       string `json:"System.Title"`
					CreatedDate string `json:"System.CreatedDate"`
					Tags        string `json:"System.Tags"`
				} `json:"fields"`
			} `json:"value"`
		}

		if err := c.getJSON(ctx, endpoint, &parsed); err != nil {
			return nil, fmt.Errorf("fetch work item batch [%d:%d]: %w", start, end, err)
		}

		for _, item := range parsed.Value {
			title := item.Fields.Title
			if title == "" {
				title = "No Title"
			}
			details = append(details, models.WorkItemDetail{
				ID:          item.ID,
				Title:       title,
				CreatedDate: parseTimestamp(item.Fields.CreatedDate),
				Tags:        item.Fields.Tags,
				URL:         item.URL,
			})
		}
	}

	c.log.Debug("detail fetch done", slog.Int("requested", len(ids)), slog.Int("returned", len(details)))
	return details, nil
}

// GetComments fetches the full comment thread for a single work item. An item
// without comments yields an empty slice.
func (c *Client) GetComments(ctx context.Context, id int) ([]models.Comment, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/_apis/wit/workItems/%d/comments?api-version=7.0-preview.3",
		c.baseURL, url.PathEscape(c.org), url.PathEscape(c.project), id)

	var parsed struct {
		Comments []struct {
			Text        string `json:"text"`
			CreatedDate string `json:"createdDate"`
		} `json:"comments"`
	}

	if err := c.getJSON(ctx, endpoint, &parsed); err != nil {
		return nil, fmt.Errorf("fetch comments for work item %d: %w", id, err)
	}

	comments := make([]models.Comment, 0, len(parsed.Comments))
	for _, comment := range parsed.Comments {
		comments = append(comments, models.Comment{
			Text:        comment.Text,
			CreatedDate: parseTimestamp(comment.CreatedDate),
		})
	}

	return comments, nil
}

// Ping verifies connectivity and credentials by reading project metadata.
func (c *Client) Ping(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/%s/_apis/projects/%s?api-version=7.0",
		c.baseURL, url.PathEscape(c.org), url.PathEscape(c.project))

	var parsed struct {
		ID string `json:"id"`
	}

	if err := c.getJSON(ctx, endpoint, &parsed); err != nil {
		return fmt.Errorf("ping tracker: %w", err)
	}

	return nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.SetBasicAuth("", c.pat)
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("azure devops returned %d: %s", res.StatusCode, strings.TrimSpace(string(data)))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	return nil
}

func joinIDs(ids []int) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.Itoa(id))
	}
	return strings.Join(parts, ",")
}

func quoteList(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, "'"+escapeWiql(v)+"'")
	}
	return strings.Join(quoted, ", ")
}

func escapeWiql(raw string) string {
	return strings.ReplaceAll(raw, "'", "''")
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}

	for _, f := range formats {
		if ts, err := time.Parse(f, raw); err == nil {
			return ts
		}
	}

	return time.Time{}
}
