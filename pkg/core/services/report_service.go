package services

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wadjakorntonsri/go-reel-lookup/pkg/core/domain"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/core/report"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/ports"
)

// ReportOptions are the dashboard defaults. Location is UTC when nil.
type ReportOptions struct {
	WindowDays int
	TopN       int
	Location   *time.Location
}

type ReportService struct {
	repo ports.ItemRepository
	opts ReportOptions
	log  *zap.Logger
	now  func() time.Time
}

func NewReportService(repo ports.ItemRepository, log *zap.Logger, opts ReportOptions) *ReportService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &ReportService{repo: repo, opts: opts, log: log, now: time.Now}
}

// ComputeReport snapshots items and events concurrently, then aggregates
// them in memory. A non-positive windowDays or topN takes the service default.
func (s *ReportService) ComputeReport(ctx context.Context, windowDays, topN int) (*domain.Report, error) {
	if windowDays <= 0 {
		windowDays = s.opts.WindowDays
	}
	if topN <= 0 {
		topN = s.opts.TopN
	}

	var (
		items  []domain.Item
		events []domain.Event
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.repo.ListItems(gctx)
		if err != nil {
			return storeErr("list items", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		events, err = s.repo.ListEvents(gctx)
		if err != nil {
			return storeErr("list events", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	start := time.Now()
	rep := report.Compute(items, events, report.Options{
		WindowDays: windowDays,
		TopN:       topN,
		Now:        s.now(),
		Location:   s.opts.Location,
	})
	s.log.Debug("report computed",
		zap.Int("items", len(items)),
		zap.Int("events", len(events)),
		zap.Duration("took", time.Since(start)))
	return rep, nil
}
