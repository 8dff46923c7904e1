package exif

import (
	"strconv"
	"strings"
	"time"

	"sourcetrace/models"
)

// Tag names as emitted by EXIF readers (exifread-style identifiers).
const (
	TagMake             = "Image Make"
	TagModel            = "Image Model"
	TagDateTime         = "Image DateTime"
	TagDateTimeOriginal = "EXIF DateTimeOriginal"
	TagSoftware         = "Image Software"
	TagOrientation      = "Image Orientation"
	TagFlash            = "EXIF Flash"
	TagFocalLength      = "EXIF FocalLength"
	TagISO              = "EXIF ISOSpeedRatings"
	TagFNumber          = "EXIF FNumber"
	TagExposureTime     = "EXIF ExposureTime"
	TagGPSLatitude      = "GPS GPSLatitude"
	TagGPSLatitudeRef   = "GPS GPSLatitudeRef"
	TagGPSLongitude     = "GPS GPSLongitude"
	TagGPSLongitudeRef  = "GPS GPSLongitudeRef"
)

// exifTimeLayout is the textual layout EXIF writers emit: 4-digit year,
// month, day, then time.
const exifTimeLayout = "2006:01:02 15:04:05"

// Rational is a raw EXIF rational value (numerator/denominator pair).
type Rational struct {
	Num int64 `json:"num"`
	Den int64 `json:"den"`
}

// TagValue is one raw tag as supplied by the metadata source. A tag carries
// either a textual representation, a list of rationals, or both.
type TagValue struct {
	Text      string     `json:"text,omitempty"`
	Rationals []Rational `json:"rationals,omitempty"`
}

// TagSet maps tag names to raw values, already parsed out of the container
// format by the extraction collaborator.
type TagSet map[string]TagValue

// Decode converts a raw tag set into canonical metadata fields. It never
// fails: absent or undecodable individual tags are simply omitted from the
// result. HasMetadata reflects whether the input had any tags at all,
// recognized or not.
func Decode(tags TagSet) models.MetadataFields {
	result := models.MetadataFields{}
	if len(tags) == 0 {
		return result
	}
	result.HasMetadata = true

	if v, ok := tags[TagMake]; ok {
		result.CameraMake = strPtr(strings.TrimSpace(v.Text))
	}
	if v, ok := tags[TagModel]; ok {
		result.CameraModel = strPtr(strings.TrimSpace(v.Text))
	}

	// DateTimeOriginal is the capture instant; the generic DateTime tag is
	// rewritten by editors, so it only serves as a fallback.
	if v, ok := tags[TagDateTimeOriginal]; ok {
		result.Timestamp = parseTimestamp(v.Text)
	}
	if result.Timestamp == nil {
		if v, ok := tags[TagDateTime]; ok {
			result.Timestamp = parseTimestamp(v.Text)
		}
	}

	if v, ok := tags[TagGPSLatitude]; ok {
		if ref, refOK := tags[TagGPSLatitudeRef]; refOK {
			if deg := toDegrees(v.Rationals); deg != nil {
				lat := *deg
				if strings.TrimSpace(ref.Text) == "S" {
					lat = -lat
				}
				result.GPSLatitude = &lat
				result.LatitudeRef = strings.TrimSpace(ref.Text)
			}
		}
	}
	if v, ok := tags[TagGPSLongitude]; ok {
		if ref, refOK := tags[TagGPSLongitudeRef]; refOK {
			if deg := toDegrees(v.Rationals); deg != nil {
				lon := *deg
				if strings.TrimSpace(ref.Text) == "W" {
					lon = -lon
				}
				result.GPSLongitude = &lon
				result.LongitudeRef = strings.TrimSpace(ref.Text)
			}
		}
	}

	if v, ok := tags[TagSoftware]; ok {
		result.Software = strPtr(strings.TrimSpace(v.Text))
	}
	if v, ok := tags[TagOrientation]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v.Text)); err == nil {
			result.Orientation = &n
		}
	}
	if v, ok := tags[TagFlash]; ok {
		fired := strings.Contains(v.Text, "Flash fired")
		result.Flash = &fired
	}
	if v, ok := tags[TagFocalLength]; ok {
		result.FocalLength = firstRational(v.Rationals)
	}
	if v, ok := tags[TagISO]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v.Text)); err == nil {
			result.ISO = &n
		}
	}
	if v, ok := tags[TagFNumber]; ok {
		result.FNumber = firstRational(v.Rationals)
	}
	if v, ok := tags[TagExposureTime]; ok {
		result.ExposureTime = strPtr(strings.TrimSpace(v.Text))
	}

	return result
}

// toDegrees converts a degrees/minutes/seconds rational triplet to decimal
// degrees. Returns nil when a component is missing or has a zero denominator.
func toDegrees(components []Rational) *float64 {
	if len(components) < 3 {
		return nil
	}
	d, okD := ratio(components[0])
	m, okM := ratio(components[1])
	s, okS := ratio(components[2])
	if !okD || !okM || !okS {
		return nil
	}
	deg := d + m/60.0 + s/3600.0
	return &deg
}

func ratio(r Rational) (float64, bool) {
	if r.Den == 0 {
		return 0, false
	}
	return float64(r.Num) / float64(r.Den), true
}

func firstRational(rs []Rational) *float64 {
	if len(rs) == 0 {
		return nil
	}
	v, ok := ratio(rs[0])
	if !ok {
		return nil
	}
	return &v
}

func parseTimestamp(raw string) *string {
	t, err := time.Parse(exifTimeLayout, strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	iso := t.UTC().Format(time.RFC3339)
	return &iso
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
