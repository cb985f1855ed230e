// Package pipeline drives the per-file upload-enrichment sequence: extract,
// normalize, upload, geocode, caption, compose, persist.
package pipeline

import (
	"context"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/davemorin/meural-manager/exif"
	"github.com/davemorin/meural-manager/geocode"
	"github.com/davemorin/meural-manager/meural"
	"github.com/davemorin/meural-manager/model"
	"github.com/davemorin/meural-manager/resize"
)

// Remote is the slice of the vendor client the pipeline needs.
type Remote interface {
	UploadItem(ctx context.Context, filename string, data []byte) (*meural.Item, error)
	UpdateItem(ctx context.Context, id int, name, description string) (*meural.Item, error)
	GetItem(ctx context.Context, id int) (*meural.Item, error)
	FetchImage(ctx context.Context, imageURL string) ([]byte, string, error)
}

type Store interface {
	Save(ctx context.Context, rec model.PhotoMetadata) error
	GetByItemID(ctx context.Context, id int) (*model.PhotoMetadata, error)
}

type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) *geocode.Place
}

type Captioner interface {
	Caption(ctx context.Context, data []byte, mimeType string) *string
}

type Pipeline struct {
	Remote Remote
	Store  Store
	Geo    Geocoder
	Cap    Captioner
	Norm   *resize.Normalizer
	Log    *zap.Logger
}

// File is one staged input of a batch. Path points at a transient on-disk
// copy which the pipeline removes when the file's processing ends, on
// success and failure alike.
type File struct {
	Name string
	Path string
}

// ProcessBatch runs each file through the pipeline in input order. One
// file's failure never aborts its siblings; the result always has exactly
// one entry per input file, in order.
func (p *Pipeline) ProcessBatch(ctx context.Context, files []File) []model.UploadOutcome {
	outcomes := make([]model.UploadOutcome, 0, len(files))
	for _, f := range files {
		outcomes = append(outcomes, p.Process(ctx, f))
	}
	return outcomes
}

// Process runs a single staged file through the pipeline.
func (p *Pipeline) Process(ctx context.Context, f File) model.UploadOutcome {
	if f.Path != "" {
		defer os.Remove(f.Path)
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return model.UploadOutcome{Filename: f.Name, Error: "read staged file: " + err.Error()}
	}

	// Extraction never fails; a broken file degrades to a bare record.
	rec := exif.Extract(data, f.Name)

	res := p.Norm.Normalize(data, f.Name)

	item, err := p.Remote.UploadItem(ctx, f.Name, res.Data)
	if err != nil {
		p.Log.Error("upload failed", zap.String("filename", f.Name), zap.Error(err))
		return model.UploadOutcome{Filename: f.Name, Error: err.Error()}
	}

	rec.ItemID = item.ID
	rec.UploadedAt = time.Now()

	place := p.reverseGeocode(ctx, &rec)
	capText := p.captionImage(ctx, res.Data)

	desc := Compose(rec, place, capText)
	if desc != "" {
		if _, err := p.Remote.UpdateItem(ctx, item.ID, item.Name, desc); err != nil {
			// Best effort: the item is uploaded, a missing caption is cosmetic.
			p.Log.Warn("description push failed",
				zap.Int("item_id", item.ID), zap.Error(err))
		}
	}

	if err := p.Store.Save(ctx, rec); err != nil {
		p.Log.Error("metadata save failed", zap.Int("item_id", item.ID), zap.Error(err))
		return model.UploadOutcome{
			Filename: f.Name,
			ItemID:   item.ID,
			Error:    "save metadata: " + err.Error(),
		}
	}

	return model.UploadOutcome{
		Filename:    f.Name,
		Success:     true,
		ItemID:      item.ID,
		Description: desc,
		Resized:     res.Resized,
	}
}

func (p *Pipeline) reverseGeocode(ctx context.Context, rec *model.PhotoMetadata) *geocode.Place {
	if rec.Location == nil || p.Geo == nil {
		return nil
	}
	place := p.Geo.Reverse(ctx, rec.Location.Latitude, rec.Location.Longitude)
	if place != nil {
		rec.Place = &place.DisplayName
	}
	return place
}

func (p *Pipeline) captionImage(ctx context.Context, data []byte) *string {
	if p.Cap == nil {
		return nil
	}
	return p.Cap.Caption(ctx, data, http.DetectContentType(data))
}
