package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/davemorin/meural-manager/model"
	"github.com/davemorin/meural-manager/pipeline"
)

// bulkAnalyzeDelay spaces out vendor calls in bulk operations so the rate
// limiter stays quiet. Variable so tests can shorten it.
var bulkAnalyzeDelay = 500 * time.Millisecond

func (h *Handlers) handleListItems(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	count, _ := strconv.Atoi(r.URL.Query().Get("count"))
	if count < 1 {
		count = 30
	}

	raw, err := h.Remote.ListItems(r.Context(), page, count)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, raw)
}

func (h *Handlers) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	item, err := h.Remote.GetItem(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, item)
}

// handleUpload accepts a multipart batch (field "photos") and runs each
// file through the pipeline sequentially. Per-file failures become result
// entries; only a malformed batch fails the request as a whole.
func (h *Handlers) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		h.writeError(w, r, fmt.Errorf("parse multipart form: %w", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["photos"]
	if len(headers) == 0 {
		h.writeError(w, r, fmt.Errorf("no files in field %q", "photos"))
		return
	}
	if len(headers) > maxUploadFiles {
		h.writeError(w, r, fmt.Errorf("too many files: %d (max %d)", len(headers), maxUploadFiles))
		return
	}

	outcomes := make([]model.UploadOutcome, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > maxFileBytes {
			outcomes = append(outcomes, model.UploadOutcome{
				Filename: fh.Filename,
				Error:    fmt.Sprintf("file exceeds %d byte limit", maxFileBytes),
			})
			continue
		}

		staged, err := stageFile(fh)
		if err != nil {
			h.Log.Error("staging failed", zap.String("filename", fh.Filename), zap.Error(err))
			outcomes = append(outcomes, model.UploadOutcome{
				Filename: fh.Filename,
				Error:    "stage file: " + err.Error(),
			})
			continue
		}

		outcomes = append(outcomes, h.Pipe.Process(r.Context(), staged))
	}

	writeData(w, outcomes)
}

// stageFile copies one multipart part to a transient temp file the pipeline
// owns (and removes) from here on.
func stageFile(fh *multipart.FileHeader) (pipeline.File, error) {
	src, err := fh.Open()
	if err != nil {
		return pipeline.File{}, err
	}
	defer src.Close()

	dst, err := os.CreateTemp("", "meural-upload-*"+filepath.Ext(fh.Filename))
	if err != nil {
		return pipeline.File{}, err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return pipeline.File{}, err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return pipeline.File{}, err
	}

	return pipeline.File{Name: fh.Filename, Path: dst.Name()}, nil
}

func (h *Handlers) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, r, fmt.Errorf("decode body: %w", err))
		return
	}
	item, err := h.Remote.UpdateItem(r.Context(), id, body.Name, body.Description)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, item)
}

func (h *Handlers) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Remote.DeleteItem(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	// Drop the metadata record alongside the remote item; a failure here is
	// best effort, the item itself is already gone.
	if err := h.DB.Delete(r.Context(), id); err != nil {
		h.Log.Warn("metadata delete failed", zap.Int("item_id", id), zap.Error(err))
	}
	writeData(w, map[string]int{"deleted": id})
}

func (h *Handlers) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []int `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, r, fmt.Errorf("decode body: %w", err))
		return
	}

	type deleteResult struct {
		ItemID  int    `json:"itemId"`
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty"`
	}
	results := make([]deleteResult, 0, len(body.IDs))
	for _, id := range body.IDs {
		res := deleteResult{ItemID: id, Success: true}
		if err := h.Remote.DeleteItem(r.Context(), id); err != nil {
			res.Success = false
			res.Error = err.Error()
		} else if err := h.DB.Delete(r.Context(), id); err != nil {
			h.Log.Warn("metadata delete failed", zap.Int("item_id", id), zap.Error(err))
		}
		results = append(results, res)
	}
	writeData(w, results)
}

func (h *Handlers) handleAnalyzeItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apply := r.URL.Query().Has("apply")

	res, err := h.Pipe.Analyze(r.Context(), id, apply)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, res)
}

func (h *Handlers) handleBulkAnalyze(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs   []int `json:"ids"`
		Apply bool  `json:"apply"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, r, fmt.Errorf("decode body: %w", err))
		return
	}

	results := make([]model.AnalyzeResult, 0, len(body.IDs))
	for i, id := range body.IDs {
		if i > 0 {
			time.Sleep(bulkAnalyzeDelay)
		}
		res, err := h.Pipe.Analyze(r.Context(), id, body.Apply)
		if err != nil {
			results = append(results, model.AnalyzeResult{ItemID: id, Error: err.Error()})
			continue
		}
		results = append(results, *res)
	}
	writeData(w, results)
}
