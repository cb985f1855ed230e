// Package exif normalizes embedded image metadata into PhotoMetadata records.
package exif

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strconv"
	"strings"
	"time"

	goexif "github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/davemorin/meural-manager/model"
)

func init() {
	goexif.RegisterParsers(mknote.All...)
}

const takenAtLayout = "2006-01-02T15:04:05"

// Extract parses embedded metadata from raw image bytes. It never fails: a
// file whose metadata cannot be decoded yields a degraded record carrying
// only the filename, so extraction can never abort an upload.
func Extract(data []byte, filename string) model.PhotoMetadata {
	rec := model.PhotoMetadata{Filename: filename}

	x, err := goexif.Decode(bytes.NewReader(data))
	if err != nil {
		return rec
	}

	rec.Raw = rawFields(x)
	rec.TakenAt = takenAt(x)
	rec.CameraMake = stringTag(x, goexif.Make)
	rec.CameraModel = stringTag(x, goexif.Model)
	rec.LensModel = stringTag(x, goexif.LensModel)
	rec.FocalLength = ratTag(x, goexif.FocalLength)
	rec.FocalLength35 = intTag(x, goexif.FocalLengthIn35mmFilm)
	rec.Aperture = ratTag(x, goexif.FNumber)
	rec.ShutterSpeed = shutterSpeed(x)
	rec.ISO = intTag(x, goexif.ISOSpeedRatings)
	rec.ExposureComp = ratTag(x, goexif.ExposureBiasValue)
	rec.Orientation = intTag(x, goexif.Orientation)
	rec.ColorSpace = colorSpace(x)
	rec.WhiteBalance = whiteBalance(x)
	rec.Location = location(x)

	rec.Width = intTag(x, goexif.PixelXDimension)
	rec.Height = intTag(x, goexif.PixelYDimension)
	if rec.Width == nil || rec.Height == nil {
		if cfg, _, derr := image.DecodeConfig(bytes.NewReader(data)); derr == nil {
			w, h := int64(cfg.Width), int64(cfg.Height)
			rec.Width, rec.Height = &w, &h
		}
	}

	return rec
}

// takenAt normalizes the vendor "YYYY:MM:DD HH:MM:SS" text to a naive
// "YYYY-MM-DDTHH:MM:SS" string. DateTimeOriginal wins over DateTime.
func takenAt(x *goexif.Exif) *string {
	for _, name := range []goexif.FieldName{goexif.DateTimeOriginal, goexif.DateTime} {
		if out := parseTakenAt(rawString(x, name)); out != nil {
			return out
		}
	}
	return nil
}

func parseTakenAt(s string) *string {
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation("2006:01:02 15:04:05", strings.TrimSpace(s), time.Local)
	if err != nil {
		return nil
	}
	out := t.Format(takenAtLayout)
	return &out
}

func location(x *goexif.Exif) *model.Location {
	lat, lon, err := x.LatLong()
	if err != nil {
		return nil
	}
	loc := &model.Location{Latitude: lat, Longitude: lon}
	if alt := ratTag(x, goexif.GPSAltitude); alt != nil {
		a := *alt
		if ref := intTag(x, goexif.GPSAltitudeRef); ref != nil && *ref == 1 {
			a = -a
		}
		loc.Altitude = &a
	}
	return loc
}

func shutterSpeed(x *goexif.Exif) *string {
	tag, err := x.Get(goexif.ExposureTime)
	if err != nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil {
		return nil
	}
	return formatShutter(num, den)
}

func formatShutter(num, den int64) *string {
	if num == 0 || den == 0 {
		return nil
	}
	var s string
	if num < den {
		s = fmt.Sprintf("1/%d", int64(math.Round(float64(den)/float64(num))))
	} else {
		s = strconv.FormatFloat(float64(num)/float64(den), 'g', -1, 64) + "s"
	}
	return &s
}

func colorSpace(x *goexif.Exif) *string {
	v := intTag(x, goexif.ColorSpace)
	if v == nil {
		return nil
	}
	var s string
	switch *v {
	case 1:
		s = "sRGB"
	case 65535:
		s = "Uncalibrated"
	default:
		s = strconv.FormatInt(*v, 10)
	}
	return &s
}

func whiteBalance(x *goexif.Exif) *string {
	v := intTag(x, goexif.WhiteBalance)
	if v == nil {
		return nil
	}
	var s string
	switch *v {
	case 0:
		s = "Auto"
	case 1:
		s = "Manual"
	default:
		s = strconv.FormatInt(*v, 10)
	}
	return &s
}

func stringTag(x *goexif.Exif, name goexif.FieldName) *string {
	s := strings.TrimSpace(rawString(x, name))
	if s == "" {
		return nil
	}
	return &s
}

func rawString(x *goexif.Exif, name goexif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return s
}

func intTag(x *goexif.Exif, name goexif.FieldName) *int64 {
	tag, err := x.Get(name)
	if err != nil {
		return nil
	}
	v, err := tag.Int(0)
	if err != nil {
		return nil
	}
	out := int64(v)
	return &out
}

// ratTag divides a rational tag into a float. A zero or missing denominator
// is treated as an absent value, never a crash or Inf.
func ratTag(x *goexif.Exif, name goexif.FieldName) *float64 {
	tag, err := x.Get(name)
	if err != nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil {
		return nil
	}
	return ratToFloat(num, den)
}

func ratToFloat(num, den int64) *float64 {
	if den == 0 {
		return nil
	}
	v := float64(num) / float64(den)
	return &v
}

type rawWalker map[string]string

func (w rawWalker) Walk(name goexif.FieldName, tag *tiff.Tag) error {
	w[string(name)] = strings.Trim(tag.String(), `"`)
	return nil
}

func rawFields(x *goexif.Exif) map[string]string {
	raw := rawWalker{}
	if err := x.Walk(raw); err != nil {
		return nil
	}
	return raw
}
