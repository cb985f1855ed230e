// Package api exposes the dashboard's HTTP surface: vendor passthroughs,
// the batch upload pipeline, and metadata queries.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/davemorin/meural-manager/meural"
	"github.com/davemorin/meural-manager/model"
	"github.com/davemorin/meural-manager/pipeline"
	"github.com/davemorin/meural-manager/storage"
)

const (
	maxUploadFiles = 50
	maxFileBytes   = 100 << 20
)

// Remote is the vendor client surface the handlers forward to.
type Remote interface {
	GetUser(ctx context.Context) (json.RawMessage, error)
	ListItems(ctx context.Context, page, count int) (json.RawMessage, error)
	GetItem(ctx context.Context, id int) (*meural.Item, error)
	DeleteItem(ctx context.Context, id int) error
	UpdateItem(ctx context.Context, id int, name, description string) (*meural.Item, error)
	ListGalleries(ctx context.Context) (json.RawMessage, error)
	CreateGallery(ctx context.Context, name, description string) (json.RawMessage, error)
	UpdateGallery(ctx context.Context, id int, name, description string) (json.RawMessage, error)
	DeleteGallery(ctx context.Context, id int) error
	AddItemToGallery(ctx context.Context, galleryID, itemID int) error
	RemoveItemFromGallery(ctx context.Context, galleryID, itemID int) error
	ListDevices(ctx context.Context) (json.RawMessage, error)
	AssignGalleryToDevice(ctx context.Context, deviceID, galleryID int) error
}

type Handlers struct {
	Remote    Remote
	DB        storage.MetadataDB
	Pipe      *pipeline.Pipeline
	Log       *zap.Logger
	StaticDir string
}

func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(RecoveryMiddleware(h.Log), RequestLoggerMiddleware(h.Log))

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/user", h.handleGetUser).Methods("GET")

	api.HandleFunc("/items", h.handleListItems).Methods("GET")
	api.HandleFunc("/items/upload", h.handleUpload).Methods("POST")
	api.HandleFunc("/items/bulk-delete", h.handleBulkDelete).Methods("POST")
	api.HandleFunc("/items/bulk-analyze", h.handleBulkAnalyze).Methods("POST")
	api.HandleFunc("/items/{id:[0-9]+}", h.handleGetItem).Methods("GET")
	api.HandleFunc("/items/{id:[0-9]+}", h.handleUpdateItem).Methods("PUT")
	api.HandleFunc("/items/{id:[0-9]+}", h.handleDeleteItem).Methods("DELETE")
	api.HandleFunc("/items/{id:[0-9]+}/analyze", h.handleAnalyzeItem).Methods("POST")

	api.HandleFunc("/exif", h.handleListMetadata).Methods("GET")
	api.HandleFunc("/exif/stats", h.handleMetadataStats).Methods("GET")
	api.HandleFunc("/exif/{id:[0-9]+}", h.handleGetMetadata).Methods("GET")

	api.HandleFunc("/galleries", h.handleListGalleries).Methods("GET")
	api.HandleFunc("/galleries", h.handleCreateGallery).Methods("POST")
	api.HandleFunc("/galleries/{id:[0-9]+}", h.handleUpdateGallery).Methods("PUT")
	api.HandleFunc("/galleries/{id:[0-9]+}", h.handleDeleteGallery).Methods("DELETE")
	api.HandleFunc("/galleries/{id:[0-9]+}/items/{itemId:[0-9]+}", h.handleAddItemToGallery).Methods("POST")
	api.HandleFunc("/galleries/{id:[0-9]+}/items/{itemId:[0-9]+}", h.handleRemoveItemFromGallery).Methods("DELETE")

	api.HandleFunc("/devices", h.handleListDevices).Methods("GET")
	api.HandleFunc("/devices/{id:[0-9]+}/galleries/{galleryId:[0-9]+}", h.handleAssignGallery).Methods("POST")

	if h.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(h.StaticDir)))
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeData wraps a payload in the {"data": ...} envelope the dashboard
// expects.
func writeData(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, map[string]any{"data": v})
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	h.Log.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func pathID(r *http.Request, name string) (int, error) {
	return strconv.Atoi(mux.Vars(r)[name])
}

func (h *Handlers) handleGetUser(w http.ResponseWriter, r *http.Request) {
	raw, err := h.Remote.GetUser(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, raw)
}

func (h *Handlers) handleListMetadata(w http.ResponseWriter, r *http.Request) {
	records, err := h.DB.ListAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []model.PhotoMetadata{}
	}
	writeData(w, records)
}

func (h *Handlers) handleMetadataStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.DB.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, stats)
}

// handleGetMetadata returns 200 with a null data field for unknown ids; a
// missing record is an answer, not an error.
func (h *Handlers) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rec, err := h.DB.GetByItemID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if rec == nil {
		writeData(w, nil)
		return
	}
	writeData(w, rec)
}
