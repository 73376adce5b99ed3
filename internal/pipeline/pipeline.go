package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/opsdash/devops-inbox/backend/internal/config"
	"github.com/opsdash/devops-inbox/backend/internal/models"
	"github.com/opsdash/devops-inbox/backend/internal/processing"
)

// Tracker is the slice of the remote tracker the pipeline consumes.
type Tracker interface {
	QueryWorkItemIDs(ctx context.Context, states []string) ([]int, error)
	GetWorkItemDetails(ctx context.Context, ids []int) ([]models.WorkItemDetail, error)
	GetComments(ctx context.Context, id int) ([]models.Comment, error)
}

// Service runs the ingestion-and-enrichment pipeline: query candidate IDs,
// fetch details in batches, enrich every item concurrently, and produce the
// final ordered result set.
type Service struct {
	tracker Tracker
	cfg     *config.API
	log     *slog.Logger
}

// New wires the pipeline to a tracker.
func New(tracker Tracker, cfg *config.API, logger *slog.Logger) *Service {
	return &Service{tracker: tracker, cfg: cfg, log: logger}
}

// Fetch recomputes the full work-item list from scratch. Enrichment fans out
// one goroutine per item, each writing only its own result slot; the first
// failure cancels the group and fails the whole fetch. No partial results are
// ever returned.
//
// The final sort is stable and keyed solely by market rank. Results are
// slotted by detail submission order before sorting, so equal-market items
// keep that order and re-running against unchanged remote state reproduces
// the output exactly. SlNo is assigned 1..N after sorting, matching final
// position.
func (s *Service) Fetch(ctx context.Context) ([]models.WorkItem, error) {
	ids, err := s.tracker.QueryWorkItemIDs(ctx, s.cfg.States)
	if err != nil {
		return nil, fmt.Errorf("query work items: %w", err)
	}
	if len(ids) == 0 {
		s.log.Info("fetch complete", slog.Int("items", 0))
		return []models.WorkItem{}, nil
	}

	details, err := s.tracker.GetWorkItemDetails(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch work item details: %w", err)
	}

	items := make([]models.WorkItem, len(details))

	g, gctx := errgroup.WithContext(ctx)
	for i, detail := range details {
		i, detail := i, detail
		g.Go(func() error {
			comments, err := s.tracker.GetComments(gctx, detail.ID)
			if err != nil {
				return fmt.Errorf("enrich work item %d: %w", detail.ID, err)
			}

			qualifying := processing.QualifyingComments(comments, s.cfg.ValidSenders)

			items[i] = models.WorkItem{
				ID:           detail.ID,
				Title:        detail.Title,
				CreatedDate:  detail.CreatedDate,
				ResponseTime: processing.ResponseTimeLabel(detail.CreatedDate, qualifying),
				Market:       processing.ClassifyMarket(detail.Tags),
				URL:          detail.URL,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(items, func(a, b int) bool {
		return processing.MarketRank(items[a].Market) < processing.MarketRank(items[b].Market)
	})

	for i := range items {
		items[i].SlNo = i + 1
	}

	s.log.Info("fetch complete", slog.Int("items", len(items)))
	return items, nil
}
