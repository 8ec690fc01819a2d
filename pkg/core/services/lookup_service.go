package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/wadjakorntonsri/go-reel-lookup/pkg/core/domain"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/ports"
)

const defaultClickLimit = 64

type LookupService struct {
	repo   ports.ItemRepository
	cache  ports.ItemCache
	cached bool
	sink   ports.EventSink
	log    *zap.Logger
	now    func() time.Time

	// background click lookups
	clicks    *semaphore.Weighted
	clickMu   sync.RWMutex
	clickWG   sync.WaitGroup
	clickDone bool
}

// NewLookupService wires the visitor operations. cache may be nil.
// clickLimit caps reverse lookups running in the background for TrackAsync.
func NewLookupService(repo ports.ItemRepository, cache ports.ItemCache, sink ports.EventSink, log *zap.Logger, clickLimit int) *LookupService {
	cached := cache != nil
	if !cached {
		cache = nopCache{}
	}
	if clickLimit < 1 {
		clickLimit = defaultClickLimit
	}
	return &LookupService{
		repo:   repo,
		cache:  cache,
		cached: cached,
		sink:   sink,
		log:    log,
		now:    time.Now,
		clicks: semaphore.NewWeighted(int64(clickLimit)),
	}
}

// Resolve maps a code to its destination and schedules an entry event.
// Event delivery is best effort and never affects the result.
func (s *LookupService) Resolve(ctx context.Context, code string) (*ports.Resolution, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &domain.ValidationError{Field: "code", Message: "is required"}
	}

	item, ok := s.cache.Get(ctx, code)
	if !ok {
		var err error
		item, err = s.fill(ctx, code)
		if err != nil {
			return nil, storeErr("resolve code", err)
		}
	}

	s.record(item.ID, domain.EventEntry)

	return &ports.Resolution{
		Code:           item.Code,
		DestinationURL: item.DestinationURL,
		ImageURL:       item.ImageURL,
	}, nil
}

// fill loads code from the store into the cache. The store is read again
// after the cache write: a delete or update that committed in between has
// already run its invalidation, so the entry just written must go too.
func (s *LookupService) fill(ctx context.Context, code string) (*domain.Item, error) {
	item, err := s.repo.GetItemByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !s.cached {
		return item, nil
	}
	s.cache.Set(ctx, item)

	current, err := s.repo.GetItemByCode(ctx, code)
	if err == nil && current.ID == item.ID && current.UpdatedAt.Equal(item.UpdatedAt) {
		return item, nil
	}
	if ierr := s.cache.Invalidate(ctx, code); ierr != nil {
		s.log.Warn("dropping raced cache entry failed", zap.String("code", code), zap.Error(ierr))
	}
	if err != nil {
		return nil, err
	}
	return current, nil
}

// Track logs a click for the item owning destinationURL. Failures are
// logged and swallowed so navigation is never held up.
func (s *LookupService) Track(ctx context.Context, destinationURL string) {
	destinationURL = strings.TrimSpace(destinationURL)
	if destinationURL == "" {
		return
	}

	item, err := s.repo.GetItemByDestination(ctx, destinationURL)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			s.log.Debug("click for unknown destination", zap.String("destination_url", destinationURL))
			return
		}
		s.log.Warn("click reverse lookup failed", zap.String("destination_url", destinationURL), zap.Error(err))
		return
	}

	s.record(item.ID, domain.EventClick)
}

// TrackAsync runs Track in the background. When clickLimit lookups are
// already in flight, or the service is closing, the click is dropped.
func (s *LookupService) TrackAsync(destinationURL string) bool {
	s.clickMu.RLock()
	defer s.clickMu.RUnlock()
	if s.clickDone {
		s.log.Warn("lookup service closed, dropping click", zap.String("destination_url", destinationURL))
		return false
	}
	if !s.clicks.TryAcquire(1) {
		s.log.Warn("too many clicks in flight, dropping click", zap.String("destination_url", destinationURL))
		return false
	}

	s.clickWG.Add(1)
	go func() {
		defer s.clickWG.Done()
		defer s.clicks.Release(1)
		s.Track(context.Background(), destinationURL)
	}()
	return true
}

// Close stops accepting clicks and waits for in-flight ones.
func (s *LookupService) Close(ctx context.Context) error {
	s.clickMu.Lock()
	s.clickDone = true
	s.clickMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.clickWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *LookupService) record(itemID string, typ domain.EventType) {
	if s.sink == nil {
		return
	}
	s.sink.Enqueue(domain.Event{
		ID:        uuid.NewString(),
		ItemID:    itemID,
		Type:      typ,
		Timestamp: s.now().UTC(),
	})
}
