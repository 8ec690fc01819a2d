package ports

import (
	"context"
	"io"

	"github.com/wadjakorntonsri/go-reel-lookup/pkg/core/domain"
)

// ItemRepository defines storage operations for items and their events
type ItemRepository interface {
	CreateItem(ctx context.Context, item *domain.Item) error // DuplicateCodeError on a taken code
	UpdateItem(ctx context.Context, item *domain.Item) error
	DeleteItem(ctx context.Context, id string) (int64, error) // Removes the item and its events atomically
	GetItemByID(ctx context.Context, id string) (*domain.Item, error)
	GetItemByCode(ctx context.Context, code string) (*domain.Item, error)
	GetItemByDestination(ctx context.Context, destinationURL string) (*domain.Item, error)
	ListItems(ctx context.Context) ([]domain.Item, error)

	// Events
	AppendEvents(ctx context.Context, events []domain.Event) error
	ListEvents(ctx context.Context) ([]domain.Event, error)
	PurgeOrphanEvents(ctx context.Context) (int64, error)

	Close() error
} // ItemRepository ends here

// ItemCache holds resolved items keyed by code
type ItemCache interface {
	Get(ctx context.Context, code string) (*domain.Item, bool)
	Set(ctx context.Context, item *domain.Item)
	Invalidate(ctx context.Context, code string) error
}

// ImageHost stores an uploaded product image and returns its public URL
type ImageHost interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
}

// EventSink accepts telemetry without blocking the caller
type EventSink interface {
	Enqueue(event domain.Event) bool
}

// ImageUpload is an image file attached to an item edit
type ImageUpload struct {
	Filename string
	Content  io.Reader
}

// CreateItemInput is the operator's new item form
type CreateItemInput struct {
	Code           string       `json:"code" validate:"required,number,max=32"`
	DestinationURL string       `json:"destination_url" validate:"required,url,startswith=http"`
	ImageURL       string       `json:"image_url" validate:"omitempty,url"`
	Image          *ImageUpload `json:"-"`
}

// UpdateItemInput edits destination and image. Code may be echoed back but never changed.
type UpdateItemInput struct {
	Code           string       `json:"code" validate:"omitempty,number"`
	DestinationURL string       `json:"destination_url" validate:"required,url,startswith=http"`
	ImageURL       string       `json:"image_url" validate:"omitempty,url"`
	Image          *ImageUpload `json:"-"`
}

// Resolution is what a visitor sees after entering a code
type Resolution struct {
	Code           string `json:"code"`
	DestinationURL string `json:"destination_url"`
	ImageURL       string `json:"image_url,omitempty"`
}

// ItemService defines the operator's item management operations
type ItemService interface {
	Create(ctx context.Context, in CreateItemInput) (*domain.Item, error)
	Update(ctx context.Context, id string, in UpdateItemInput) (*domain.Item, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*domain.Item, error)
	GetByCode(ctx context.Context, code string) (*domain.Item, error)
	List(ctx context.Context) ([]domain.Item, error)
	NextCode(ctx context.Context) (string, error)
}

// LookupService defines the visitor-facing operations
type LookupService interface {
	Resolve(ctx context.Context, code string) (*Resolution, error)
	Track(ctx context.Context, destinationURL string)
	TrackAsync(destinationURL string) bool // false when the click was dropped
}

// ReportService builds the operator dashboard
type ReportService interface {
	ComputeReport(ctx context.Context, windowDays, topN int) (*domain.Report, error)
}
