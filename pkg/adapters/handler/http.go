package handler

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/wadjakorntonsri/go-reel-lookup/pkg/core/domain"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/ports"
)

// maxFormMemory is how much of a multipart body is held in memory before
// spilling to temp files.
const maxFormMemory = 10 << 20

const (
	msgInvalidCode = "Invalid code. Please try again."
	msgUnavailable = "Service unavailable. Check access."
)

type HTTPHandler struct {
	items   ports.ItemService
	lookup  ports.LookupService
	reports ports.ReportService
	log     *zap.Logger
}

func NewHTTPHandler(items ports.ItemService, lookup ports.LookupService, reports ports.ReportService, log *zap.Logger) *HTTPHandler {
	return &HTTPHandler{items: items, lookup: lookup, reports: reports, log: log}
}

// ItemRequest payload, sent as JSON or as multipart form fields
type ItemRequest struct {
	Code           string `json:"code"`
	DestinationURL string `json:"destination_url"`
	ImageURL       string `json:"image_url"`
}

// TrackRequest payload
type TrackRequest struct {
	DestinationURL string `json:"destination_url"`
}

// Lookup resolves a visitor's code
func (h *HTTPHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	res, err := h.lookup.Resolve(r.Context(), code)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: msgInvalidCode})
			return
		}
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// Track records a click-through. It answers before the click is looked up,
// and still answers 202 when the click is dropped.
func (h *HTTPHandler) Track(w http.ResponseWriter, r *http.Request) {
	var req TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body"})
		return
	}
	if req.DestinationURL == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "destination_url is required", Field: "destination_url"})
		return
	}

	h.lookup.TrackAsync(req.DestinationURL)

	w.WriteHeader(http.StatusAccepted)
}

// Create Item
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, img, err := decodeItemRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body"})
		return
	}
	if img != nil {
		defer img.close()
	}

	in := ports.CreateItemInput{
		Code:           req.Code,
		DestinationURL: req.DestinationURL,
		ImageURL:       req.ImageURL,
	}
	if img != nil {
		in.Image = &img.upload
	}

	item, err := h.items.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.audit(r, "create", item.ID)

	writeJSON(w, http.StatusCreated, item)
}

// List Items in code order
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.items.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Item{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  items,
		"total": len(items),
	})
}

// NextCode suggests the code for a new item
func (h *HTTPHandler) NextCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.items.NextCode(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"code": code})
}

func (h *HTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.items.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, item)
}

// Update Item
func (h *HTTPHandler) Update(w http.ResponseWriter, r *http.Request) {
	req, img, err := decodeItemRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body"})
		return
	}
	if img != nil {
		defer img.close()
	}

	in := ports.UpdateItemInput{
		Code:           req.Code,
		DestinationURL: req.DestinationURL,
		ImageURL:       req.ImageURL,
	}
	if img != nil {
		in.Image = &img.upload
	}

	item, err := h.items.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.audit(r, "update", item.ID)

	writeJSON(w, http.StatusOK, item)
}

// Delete Item and its events
func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.items.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.audit(r, "delete", r.PathValue("id"))

	w.WriteHeader(http.StatusNoContent)
}

// Report builds the dashboard. days and top are optional.
func (h *HTTPHandler) Report(w http.ResponseWriter, r *http.Request) {
	days, err := optionalInt(r, "days")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "days must be a number", Field: "days"})
		return
	}
	top, err := optionalInt(r, "top")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "top must be a number", Field: "top"})
		return
	}

	rep, err := h.reports.ComputeReport(r.Context(), days, top)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

// audit records which operator changed an item.
func (h *HTTPHandler) audit(r *http.Request, action, id string) {
	h.log.Info("operator action",
		zap.String("operator", Operator(r.Context())),
		zap.String("action", action),
		zap.String("item_id", id))
}

func optionalInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

type imagePart struct {
	upload ports.ImageUpload
	close  func() error
}

// decodeItemRequest reads either a JSON body or a multipart form carrying an
// optional "image" file.
func decodeItemRequest(r *http.Request) (ItemRequest, *imagePart, error) {
	var req ItemRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, nil, err
	}

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		return req, nil, err
	}
	req.Code = r.FormValue("code")
	req.DestinationURL = r.FormValue("destination_url")
	req.ImageURL = r.FormValue("image_url")

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil, nil
	}
	if err != nil {
		return req, nil, err
	}
	return req, &imagePart{
		upload: ports.ImageUpload{Filename: header.Filename, Content: file},
		close:  file.Close,
	}, nil
}
