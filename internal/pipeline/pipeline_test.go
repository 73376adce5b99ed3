package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opsdash/devops-inbox/backend/internal/config"
	"github.com/opsdash/devops-inbox/backend/internal/models"
	"github.com/opsdash/devops-inbox/backend/internal/pipeline"
)

type stubTracker struct {
	ids        []int
	details    []models.WorkItemDetail
	comments   map[int][]models.Comment
	queryErr   error
	detailErr  error
	commentErr map[int]error
}

func (s *stubTracker) QueryWorkItemIDs(_ context.Context, _ []string) ([]int, error) {
	return s.ids, s.queryErr
}

func (s *stubTracker) GetWorkItemDetails(_ context.Context, _ []int) ([]models.WorkItemDetail, error) {
	return s.details, s.detailErr
}

func (s *stubTracker) GetComments(_ context.Context, id int) ([]models.Comment, error) {
	if err, ok := s.commentErr[id]; ok {
		return nil, err
	}
	return s.comments[id], nil
}

func testConfig() *config.API {
	return &config.API{
		States:       []string{"To Do", "Doing"},
		ValidSenders: []string{"software@ndc.com", "paul.strutt@nordson.com"},
	}
}

func newService(tracker pipeline.Tracker) *pipeline.Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return pipeline.New(tracker, testConfig(), log)
}

func TestFetchEndToEnd(t *testing.T) {
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	// submitted out of market order on purpose: C, A, B
	tracker := &stubTracker{
		ids: []int{3, 1, 2},
		details: []models.WorkItemDetail{
			{ID: 3, Title: "No Title", CreatedDate: created, Tags: "", URL: "u3"},
			{ID: 1, Title: "Gauge drift", CreatedDate: created, Tags: "FE&C", URL: "u1"},
			{ID: 2, Title: "Scanner offline", CreatedDate: created, Tags: "C&T", URL: "u2"},
		},
		comments: map[int][]models.Comment{
			1: {
				{Text: "From: software@ndc.com\nraised", CreatedDate: created.Add(time.Hour)},
			},
			2: {
				{Text: "From: software@ndc.com\nraised", CreatedDate: created.Add(time.Hour)},
				{Text: "From: paul.strutt@nordson.com\nlooking", CreatedDate: created.Add(48 * time.Hour)},
				{Text: "From: software@ndc.com\nthanks", CreatedDate: created.Add(72 * time.Hour)},
			},
		},
	}

	items, err := newService(tracker).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)

	// market priority wins over submission order: FE&C, C&T, Other
	require.Equal(t, []int{1, 2, 3}, []int{items[0].ID, items[1].ID, items[2].ID})

	// slNo is a contiguous 1..N range matching final order
	for i, item := range items {
		require.Equal(t, i+1, item.SlNo)
	}

	// A: one qualifying comment is not enough for a response time
	require.Equal(t, "", items[0].ResponseTime)
	// B: second qualifying comment 48h after creation
	require.Equal(t, "2 days", items[1].ResponseTime)
	// C: no tags classifies as Other
	require.Equal(t, models.MarketOther, items[2].Market)
	require.Equal(t, "u1", items[0].URL)
}

func TestFetchKeepsSubmissionOrderWithinMarket(t *testing.T) {
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	tracker := &stubTracker{
		ids: []int{10, 11, 12},
		details: []models.WorkItemDetail{
			{ID: 10, Title: "first", CreatedDate: created, Tags: "Random"},
			{ID: 11, Title: "second", CreatedDate: created, Tags: ""},
			{ID: 12, Title: "third", CreatedDate: created, Tags: "spare-parts"},
		},
		comments: map[int][]models.Comment{},
	}

	items, err := newService(tracker).Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int{10, 11, 12}, []int{items[0].ID, items[1].ID, items[2].ID})

	// deterministic: a second run yields identical output
	again, err := newService(tracker).Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, items, again)
}

func TestFetchEmptyQueryResult(t *testing.T) {
	items, err := newService(&stubTracker{}).Fetch(context.Background())
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestFetchQueryFailureAborts(t *testing.T) {
	tracker := &stubTracker{queryErr: errors.New("wiql rejected")}

	_, err := newService(tracker).Fetch(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "wiql rejected")
}

func TestFetchDetailFailureAborts(t *testing.T) {
	tracker := &stubTracker{
		ids:       []int{1},
		detailErr: errors.New("batch failed"),
	}

	_, err := newService(tracker).Fetch(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "batch failed")
}

func TestFetchSingleCommentFailureFailsWholeSet(t *testing.T) {
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	tracker := &stubTracker{
		ids: []int{1, 2},
		details: []models.WorkItemDetail{
			{ID: 1, Title: "fine", CreatedDate: created, Tags: "FE&C"},
			{ID: 2, Title: "broken", CreatedDate: created, Tags: "FB&T"},
		},
		comments:   map[int][]models.Comment{},
		commentErr: map[int]error{2: errors.New("thread unavailable")},
	}

	items, err := newService(tracker).Fetch(context.Background())
	require.Error(t, err)
	require.Nil(t, items)
	require.Contains(t, err.Error(), "work item 2")
}
