package services

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wadjakorntonsri/go-reel-lookup/pkg/core/domain"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/ports"
)

const (
	invalidateAttempts = 3
	invalidateBackoff  = 50 * time.Millisecond
)

type ItemService struct {
	repo     ports.ItemRepository
	cache    ports.ItemCache
	images   ports.ImageHost
	log      *zap.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewItemService wires the item registry. cache and images may be nil.
func NewItemService(repo ports.ItemRepository, cache ports.ItemCache, images ports.ImageHost, log *zap.Logger) *ItemService {
	if cache == nil {
		cache = nopCache{}
	}
	return &ItemService{
		repo:     repo,
		cache:    cache,
		images:   images,
		log:      log,
		validate: newValidator(),
		now:      time.Now,
	}
}

func (s *ItemService) Create(ctx context.Context, in ports.CreateItemInput) (*domain.Item, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.DestinationURL = strings.TrimSpace(in.DestinationURL)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	if err := s.check(in); err != nil {
		return nil, err
	}

	imageURL := in.ImageURL
	if in.Image != nil {
		uploaded, err := s.upload(ctx, in.Image)
		if err != nil {
			return nil, err
		}
		imageURL = uploaded
	}

	now := s.now().UTC()
	item := &domain.Item{
		ID:             uuid.NewString(),
		Code:           in.Code,
		DestinationURL: in.DestinationURL,
		ImageURL:       imageURL,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// The unique index on code decides; no read-before-write.
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, storeErr("create item", err)
	}
	s.invalidate(ctx, item.Code)

	s.log.Info("item created", zap.String("id", item.ID), zap.String("code", item.Code))
	return item, nil
}

func (s *ItemService) Update(ctx context.Context, id string, in ports.UpdateItemInput) (*domain.Item, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.DestinationURL = strings.TrimSpace(in.DestinationURL)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	if err := s.check(in); err != nil {
		return nil, err
	}

	item, err := s.repo.GetItemByID(ctx, id)
	if err != nil {
		return nil, storeErr("get item", err)
	}
	if in.Code != "" && in.Code != item.Code {
		return nil, &domain.ValidationError{Field: "code", Message: "cannot be changed once created"}
	}

	switch {
	case in.Image != nil:
		uploaded, err := s.upload(ctx, in.Image)
		if err != nil {
			return nil, err
		}
		item.ImageURL = uploaded
	case in.ImageURL != "":
		item.ImageURL = in.ImageURL
	}
	item.DestinationURL = in.DestinationURL
	item.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return nil, storeErr("update item", err)
	}
	s.invalidate(ctx, item.Code)

	s.log.Info("item updated", zap.String("id", item.ID), zap.String("code", item.Code))
	return item, nil
}

func (s *ItemService) Delete(ctx context.Context, id string) error {
	item, err := s.repo.GetItemByID(ctx, id)
	if err != nil {
		return storeErr("get item", err)
	}

	removed, err := s.repo.DeleteItem(ctx, id)
	if err != nil {
		return storeErr("delete item", err)
	}
	s.invalidate(ctx, item.Code)

	s.log.Info("item deleted", zap.String("id", id), zap.String("code", item.Code), zap.Int64("events_removed", removed))
	return nil
}

func (s *ItemService) Get(ctx context.Context, id string) (*domain.Item, error) {
	item, err := s.repo.GetItemByID(ctx, id)
	if err != nil {
		return nil, storeErr("get item", err)
	}
	return item, nil
}

func (s *ItemService) GetByCode(ctx context.Context, code string) (*domain.Item, error) {
	item, err := s.repo.GetItemByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, storeErr("get item by code", err)
	}
	return item, nil
}

// List returns every item ordered by numeric code.
func (s *ItemService) List(ctx context.Context) ([]domain.Item, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return nil, storeErr("list items", err)
	}
	domain.SortItemsByCode(items)
	return items, nil
}

// NextCode suggests a code for the next new item.
func (s *ItemService) NextCode(ctx context.Context) (string, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return "", storeErr("list items", err)
	}
	return domain.NextCode(items), nil
}

// invalidate drops the cached copy of code after a committed write.
func (s *ItemService) invalidate(ctx context.Context, code string) {
	var err error
	for attempt := 0; attempt < invalidateAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(invalidateBackoff << (attempt - 1))
		}
		if err = s.cache.Invalidate(ctx, code); err == nil {
			return
		}
	}
	s.log.Error("cache invalidation failed, stale entry may be served until it expires",
		zap.String("code", code), zap.Int("attempts", invalidateAttempts), zap.Error(err))
}

func (s *ItemService) upload(ctx context.Context, img *ports.ImageUpload) (string, error) {
	if s.images == nil {
		return "", &domain.UploadError{Message: "image hosting is not configured"}
	}
	url, err := s.images.Upload(ctx, img.Filename, img.Content)
	if err != nil {
		var upErr *domain.UploadError
		if errors.As(err, &upErr) {
			return "", err
		}
		return "", &domain.UploadError{Message: "upload request failed", Err: err}
	}
	return url, nil
}

func (s *ItemService) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &domain.ValidationError{Message: err.Error()}
	}
	fe := fieldErrs[0]
	return &domain.ValidationError{Field: fe.Field(), Message: describe(fe)}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "number":
		return "must contain only digits"
	case "url", "startswith":
		return "must be a valid http(s) URL"
	case "max":
		return "is too long"
	}
	return "is invalid"
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (*domain.Item, bool) { return nil, false }
func (nopCache) Set(context.Context, *domain.Item)                {}
func (nopCache) Invalidate(context.Context, string) error         { return nil }
