package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/davemorin/meural-manager/geocode"
	"github.com/davemorin/meural-manager/model"
)

// Analyze re-runs enrichment for an already uploaded item: it downloads the
// item's image from the vendor, captions it, geocodes the stored GPS fix,
// and composes a fresh description. With apply set, the description is
// pushed back onto the vendor item, keeping its name.
func (p *Pipeline) Analyze(ctx context.Context, itemID int, apply bool) (*model.AnalyzeResult, error) {
	item, err := p.Remote.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	imageURL := item.OriginalImage
	if imageURL == "" {
		imageURL = item.Image
	}

	var capText *string
	if imageURL != "" {
		data, mimeType, err := p.Remote.FetchImage(ctx, imageURL)
		if err != nil {
			p.Log.Warn("image fetch failed, analyzing without caption",
				zap.Int("item_id", itemID), zap.Error(err))
		} else if p.Cap != nil {
			if mimeType == "" {
				mimeType = "image/jpeg"
			}
			capText = p.Cap.Caption(ctx, data, mimeType)
		}
	}

	meta, err := p.Store.GetByItemID(ctx, itemID)
	if err != nil {
		p.Log.Warn("metadata lookup failed", zap.Int("item_id", itemID), zap.Error(err))
	}

	var rec model.PhotoMetadata
	var place *geocode.Place
	if meta != nil {
		rec = *meta
		if rec.Location != nil && p.Geo != nil {
			place = p.Geo.Reverse(ctx, rec.Location.Latitude, rec.Location.Longitude)
			if place != nil && rec.Place == nil {
				rec.Place = &place.DisplayName
				if err := p.Store.Save(ctx, rec); err != nil {
					p.Log.Warn("place backfill failed", zap.Int("item_id", itemID), zap.Error(err))
				}
			}
		}
	}

	desc := Compose(rec, place, capText)

	result := &model.AnalyzeResult{
		ItemID:      itemID,
		Caption:     capText,
		Description: desc,
	}
	if place != nil {
		result.Place = &place.DisplayName
	}

	if apply && desc != "" {
		if _, err := p.Remote.UpdateItem(ctx, itemID, item.Name, desc); err != nil {
			p.Log.Warn("description apply failed", zap.Int("item_id", itemID), zap.Error(err))
			result.Error = err.Error()
		} else {
			result.Applied = true
		}
	}

	return result, nil
}
