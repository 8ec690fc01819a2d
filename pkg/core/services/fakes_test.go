package services

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/wadjakorntonsri/go-reel-lookup/pkg/core/domain"
)

var errDiskIO = errors.New("disk I/O error")

// memRepo is an in-memory ItemRepository. failWith makes every call fail.
type memRepo struct {
	mu       sync.Mutex
	items    map[string]domain.Item
	events   []domain.Event
	failWith error
	creates  int
}

func newMemRepo() *memRepo {
	return &memRepo{items: map[string]domain.Item{}}
}

func (m *memRepo) CreateItem(ctx context.Context, item *domain.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.creates++
	for _, it := range m.items {
		if it.Code == item.Code {
			return &domain.DuplicateCodeError{Code: item.Code}
		}
	}
	m.items[item.ID] = *item
	return nil
}

func (m *memRepo) UpdateItem(ctx context.Context, item *domain.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.items[item.ID]; !ok {
		return &domain.NotFoundError{Message: "item not found"}
	}
	m.items[item.ID] = *item
	return nil
}

func (m *memRepo) DeleteItem(ctx context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}
	if _, ok := m.items[id]; !ok {
		return 0, &domain.NotFoundError{Message: "item not found"}
	}
	kept := m.events[:0]
	var removed int64
	for _, ev := range m.events {
		if ev.ItemID == id {
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	m.events = kept
	delete(m.items, id)
	return removed, nil
}

func (m *memRepo) find(match func(domain.Item) bool) (*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, it := range m.items {
		if match(it) {
			found := it
			return &found, nil
		}
	}
	return nil, &domain.NotFoundError{Message: "item not found"}
}

func (m *memRepo) GetItemByID(ctx context.Context, id string) (*domain.Item, error) {
	return m.find(func(it domain.Item) bool { return it.ID == id })
}

func (m *memRepo) GetItemByCode(ctx context.Context, code string) (*domain.Item, error) {
	return m.find(func(it domain.Item) bool { return it.Code == code })
}

func (m *memRepo) GetItemByDestination(ctx context.Context, destinationURL string) (*domain.Item, error) {
	return m.find(func(it domain.Item) bool { return it.DestinationURL == destinationURL })
}

func (m *memRepo) ListItems(ctx context.Context) ([]domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := make([]domain.Item, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	return out, nil
}

func (m *memRepo) AppendEvents(ctx context.Context, events []domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.events = append(m.events, events...)
	return nil
}

func (m *memRepo) ListEvents(ctx context.Context) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	return append([]domain.Event(nil), m.events...), nil
}

func (m *memRepo) PurgeOrphanEvents(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[:0]
	var removed int64
	for _, ev := range m.events {
		if _, ok := m.items[ev.ItemID]; !ok {
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	m.events = kept
	return removed, nil
}

func (m *memRepo) Close() error { return nil }

func (m *memRepo) setFail(err error) {
	m.mu.Lock()
	m.failWith = err
	m.mu.Unlock()
}

// sinkRecorder collects enqueued events synchronously.
type sinkRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *sinkRecorder) Enqueue(event domain.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return true
}

func (s *sinkRecorder) snapshot() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

type mapCache struct {
	mu          sync.Mutex
	items       map[string]domain.Item
	invalidated []string
	failures    int // Invalidate calls that fail before one succeeds
}

func newMapCache() *mapCache {
	return &mapCache{items: map[string]domain.Item{}}
}

func (c *mapCache) Get(ctx context.Context, code string) (*domain.Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[code]
	if !ok {
		return nil, false
	}
	return &it, true
}

func (c *mapCache) Set(ctx context.Context, item *domain.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[item.Code] = *item
}

func (c *mapCache) Invalidate(ctx context.Context, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, code)
	if c.failures > 0 {
		c.failures--
		return errors.New("connection refused")
	}
	delete(c.items, code)
	return nil
}

type fakeImageHost struct {
	url      string
	err      error
	uploaded string
}

func (f *fakeImageHost) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	b, _ := io.ReadAll(r)
	f.uploaded = filename + ":" + string(b)
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}
