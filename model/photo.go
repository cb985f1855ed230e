package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PhotoMetadata is one normalized metadata record per Meural item, keyed by
// the remote item id. Typed capture fields are pointers: nil means the tag
// was absent from the source image, which is distinct from a legitimate
// zero value (an exposure compensation of 0 is real data).
type PhotoMetadata struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	ItemID     int                `bson:"item_id" json:"itemId"`
	Filename   string             `bson:"filename" json:"filename"`
	UploadedAt time.Time          `bson:"uploaded_at" json:"uploadedAt"`

	// TakenAt is normalized to "YYYY-MM-DDTHH:MM:SS", naive local time.
	TakenAt       *string  `bson:"taken_at,omitempty" json:"takenAt"`
	CameraMake    *string  `bson:"camera_make,omitempty" json:"cameraMake"`
	CameraModel   *string  `bson:"camera_model,omitempty" json:"cameraModel"`
	LensModel     *string  `bson:"lens_model,omitempty" json:"lensModel"`
	FocalLength   *float64 `bson:"focal_length,omitempty" json:"focalLength"`
	FocalLength35 *int64   `bson:"focal_length_35,omitempty" json:"focalLength35"`
	Aperture      *float64 `bson:"aperture,omitempty" json:"aperture"`
	ShutterSpeed  *string  `bson:"shutter_speed,omitempty" json:"shutterSpeed"`
	ISO           *int64   `bson:"iso,omitempty" json:"iso"`
	ExposureComp  *float64 `bson:"exposure_comp,omitempty" json:"exposureComp"`

	Location *Location `bson:"location,omitempty" json:"location"`
	// Place is the reverse-geocoded name, filled after upload when GPS exists.
	Place *string `bson:"place,omitempty" json:"place"`

	Width        *int64  `bson:"width,omitempty" json:"width"`
	Height       *int64  `bson:"height,omitempty" json:"height"`
	Orientation  *int64  `bson:"orientation,omitempty" json:"orientation"`
	ColorSpace   *string `bson:"color_space,omitempty" json:"colorSpace"`
	WhiteBalance *string `bson:"white_balance,omitempty" json:"whiteBalance"`

	// Raw holds every tag the extractor decoded, for debugging and for
	// fields the typed schema doesn't cover yet.
	Raw map[string]string `bson:"raw,omitempty" json:"raw,omitempty"`
}

// Location groups GPS attributes. Latitude and longitude are all-or-nothing;
// altitude may still be missing on its own.
type Location struct {
	Latitude  float64  `bson:"latitude" json:"latitude"`
	Longitude float64  `bson:"longitude" json:"longitude"`
	Altitude  *float64 `bson:"altitude,omitempty" json:"altitude"`
}

// UploadOutcome is one per-file entry in a batch upload response. The slice
// of outcomes matches the input file order and never drops an entry.
type UploadOutcome struct {
	Filename    string `json:"filename"`
	Success     bool   `json:"success"`
	ItemID      int    `json:"itemId,omitempty"`
	Description string `json:"description,omitempty"`
	Resized     bool   `json:"resized,omitempty"`
	Error       string `json:"error,omitempty"`
}

// AnalyzeResult is the response of an analyze call for a single item.
type AnalyzeResult struct {
	ItemID      int     `json:"itemId"`
	Caption     *string `json:"caption"`
	Place       *string `json:"place"`
	Description string  `json:"description"`
	Applied     bool    `json:"applied"`
	Error       string  `json:"error,omitempty"`
}

// MetadataStats aggregates the stored records.
type MetadataStats struct {
	Total    int64            `json:"total"`
	WithGPS  int64            `json:"withGps"`
	ByCamera map[string]int64 `json:"byCamera"`
	ByLens   map[string]int64 `json:"byLens"`
	ByYear   map[string]int64 `json:"byYear"`
}
