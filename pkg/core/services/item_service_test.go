package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/wadjakorntonsri/go-reel-lookup/pkg/core/domain"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/ports"
)

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name      string
		in        ports.CreateItemInput
		wantField string
	}{
		{"Missing Code", ports.CreateItemInput{DestinationURL: "https://shop.example/a"}, "code"},
		{"Non Numeric Code", ports.CreateItemInput{Code: "12a", DestinationURL: "https://shop.example/a"}, "code"},
		{"Blank Code", ports.CreateItemInput{Code: "   ", DestinationURL: "https://shop.example/a"}, "code"},
		{"Missing Destination", ports.CreateItemInput{Code: "1"}, "destination_url"},
		{"Bad Destination", ports.CreateItemInput{Code: "1", DestinationURL: "not a url"}, "destination_url"},
		{"Non HTTP Destination", ports.CreateItemInput{Code: "1", DestinationURL: "ftp://shop.example/a"}, "destination_url"},
		{"Bad Image URL", ports.CreateItemInput{Code: "1", DestinationURL: "https://shop.example/a", ImageURL: "nope"}, "image_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo()
			svc := NewItemService(repo, nil, nil, zap.NewNop())

			_, err := svc.Create(context.Background(), tt.in)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("field = %q, want %q", verr.Field, tt.wantField)
			}
			if repo.creates != 0 {
				t.Errorf("store was written on invalid input")
			}
		})
	}
}

func TestCreateDuplicateCode(t *testing.T) {
	svc := NewItemService(newMemRepo(), nil, nil, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.Create(ctx, ports.CreateItemInput{Code: "10", DestinationURL: "https://shop.example/a"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.Create(ctx, ports.CreateItemInput{Code: " 10 ", DestinationURL: "https://shop.example/b"})
	var dup *domain.DuplicateCodeError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateCodeError, got %v", err)
	}

	items, _ := svc.List(ctx)
	if len(items) != 1 {
		t.Errorf("items = %d, want 1", len(items))
	}
}

func TestCreateWithUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		host := &fakeImageHost{url: "https://i.ibb.co/x/mug.png"}
		svc := NewItemService(newMemRepo(), nil, host, zap.NewNop())

		item, err := svc.Create(ctx, ports.CreateItemInput{
			Code:           "5",
			DestinationURL: "https://shop.example/mug",
			ImageURL:       "https://old.example/ignored.png",
			Image:          &ports.ImageUpload{Filename: "mug.png", Content: strings.NewReader("bytes")},
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if item.ImageURL != host.url {
			t.Errorf("image url = %q", item.ImageURL)
		}
		if host.uploaded != "mug.png:bytes" {
			t.Errorf("uploaded = %q", host.uploaded)
		}
	})

	t.Run("Failure Aborts Write", func(t *testing.T) {
		repo := newMemRepo()
		host := &fakeImageHost{err: errors.New("connection reset")}
		svc := NewItemService(repo, nil, host, zap.NewNop())

		_, err := svc.Create(ctx, ports.CreateItemInput{
			Code:           "5",
			DestinationURL: "https://shop.example/mug",
			Image:          &ports.ImageUpload{Filename: "mug.png", Content: strings.NewReader("bytes")},
		})
		var upErr *domain.UploadError
		if !errors.As(err, &upErr) {
			t.Fatalf("expected UploadError, got %v", err)
		}
		if repo.creates != 0 {
			t.Error("item was written despite failed upload")
		}
	})

	t.Run("Not Configured", func(t *testing.T) {
		svc := NewItemService(newMemRepo(), nil, nil, zap.NewNop())
		_, err := svc.Create(ctx, ports.CreateItemInput{
			Code:           "5",
			DestinationURL: "https://shop.example/mug",
			Image:          &ports.ImageUpload{Filename: "mug.png", Content: strings.NewReader("bytes")},
		})
		var upErr *domain.UploadError
		if !errors.As(err, &upErr) {
			t.Fatalf("expected UploadError, got %v", err)
		}
	})
}

func TestUpdateKeepsCode(t *testing.T) {
	ctx := context.Background()
	cache := newMapCache()
	svc := NewItemService(newMemRepo(), cache, nil, zap.NewNop())

	item, err := svc.Create(ctx, ports.CreateItemInput{Code: "10", DestinationURL: "https://shop.example/a", ImageURL: "https://img.example/a.png"})
	if err != nil {
		t.Fatal(err)
	}

	// Resubmitting the item's own code is an ordinary edit.
	updated, err := svc.Update(ctx, item.ID, ports.UpdateItemInput{Code: "10", DestinationURL: "https://shop.example/a2"})
	if err != nil {
		t.Fatalf("update with own code: %v", err)
	}
	if updated.DestinationURL != "https://shop.example/a2" {
		t.Errorf("destination = %q", updated.DestinationURL)
	}
	if updated.ImageURL != "https://img.example/a.png" {
		t.Errorf("image url should be kept, got %q", updated.ImageURL)
	}

	_, err = svc.Update(ctx, item.ID, ports.UpdateItemInput{Code: "11", DestinationURL: "https://shop.example/a3"})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "code" {
		t.Fatalf("expected code ValidationError, got %v", err)
	}

	_, err = svc.Update(ctx, "missing", ports.UpdateItemInput{DestinationURL: "https://shop.example/x"})
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	if len(cache.invalidated) < 2 {
		t.Errorf("cache invalidations = %v", cache.invalidated)
	}
}

func TestDeleteCascades(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	cache := newMapCache()
	svc := NewItemService(repo, cache, nil, zap.NewNop())

	a, _ := svc.Create(ctx, ports.CreateItemInput{Code: "1", DestinationURL: "https://shop.example/a"})
	b, _ := svc.Create(ctx, ports.CreateItemInput{Code: "2", DestinationURL: "https://shop.example/b"})
	repo.AppendEvents(ctx, []domain.Event{
		{ID: "e1", ItemID: a.ID, Type: domain.EventEntry},
		{ID: "e2", ItemID: a.ID, Type: domain.EventClick},
		{ID: "e3", ItemID: b.ID, Type: domain.EventEntry},
	})
	cache.Set(ctx, a)

	if err := svc.Delete(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	events, _ := repo.ListEvents(ctx)
	if len(events) != 1 || events[0].ItemID != b.ID {
		t.Errorf("remaining events = %+v", events)
	}
	if _, ok := cache.Get(ctx, "1"); ok {
		t.Error("deleted item still cached")
	}

	err := svc.Delete(ctx, a.ID)
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("second delete: expected NotFoundError, got %v", err)
	}
}

func TestStoreFailureSurfacesAsUnavailable(t *testing.T) {
	repo := newMemRepo()
	repo.setFail(errDiskIO)
	svc := NewItemService(repo, nil, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), ports.CreateItemInput{Code: "1", DestinationURL: "https://shop.example/a"})
	var unavailable *domain.StoreUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected StoreUnavailableError, got %v", err)
	}
	if !errors.Is(err, errDiskIO) {
		t.Error("cause not wrapped")
	}
}

func TestListAndNextCode(t *testing.T) {
	ctx := context.Background()
	svc := NewItemService(newMemRepo(), nil, nil, zap.NewNop())

	code, err := svc.NextCode(ctx)
	if err != nil || code != "1" {
		t.Fatalf("next code on empty = %q, %v", code, err)
	}

	for _, c := range []string{"10", "9", "100", "2"} {
		if _, err := svc.Create(ctx, ports.CreateItemInput{Code: c, DestinationURL: "https://shop.example/" + c}); err != nil {
			t.Fatal(err)
		}
	}

	items, err := svc.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, it := range items {
		got = append(got, it.Code)
	}
	if strings.Join(got, ",") != "2,9,10,100" {
		t.Errorf("order = %v", got)
	}

	code, _ = svc.NextCode(ctx)
	if code != "101" {
		t.Errorf("next code = %q, want 101", code)
	}

	item, err := svc.GetByCode(ctx, " 9 ")
	if err != nil || item.DestinationURL != "https://shop.example/9" {
		t.Fatalf("get by code = %+v, %v", item, err)
	}
	got2, err := svc.Get(ctx, item.ID)
	if err != nil || got2.Code != "9" {
		t.Errorf("get = %+v, %v", got2, err)
	}
}

func TestDeleteRetriesInvalidation(t *testing.T) {
	ctx := context.Background()
	cache := newMapCache()
	svc := NewItemService(newMemRepo(), cache, nil, zap.NewNop())

	item, err := svc.Create(ctx, ports.CreateItemInput{Code: "3", DestinationURL: "https://shop.example/c"})
	if err != nil {
		t.Fatal(err)
	}
	cache.Set(ctx, item)
	cache.failures = invalidateAttempts - 1

	if err := svc.Delete(ctx, item.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := cache.Get(ctx, "3"); ok {
		t.Error("entry survived a transient invalidation failure")
	}
}
