// Package metadata reads the properties of a single image file for the
// inspect command: decoded geometry, color mode and embedded EXIF tags.
package metadata

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"photo-compressor-go/internal/compressor"

	"github.com/barasher/go-exiftool"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
)

// Source names where the EXIF fields of a Metadata came from.
type Source string

const (
	SourceNone     Source = "none"
	SourceGoExif   Source = "exif"
	SourceExiftool Source = "exiftool"
)

// ErrNoEXIF is returned by the readers when a file carries no usable EXIF.
var ErrNoEXIF = errors.New("no EXIF data")

// Metadata describes one image and what compressing it would produce.
type Metadata struct {
	Path        string
	Format      string
	Size        int64
	Width       int
	Height      int
	Mode        compressor.ColorMode
	FitWidth    int
	FitHeight   int
	Camera      string
	Software    string
	Orientation int
	TakenAt     *time.Time
	Source      Source
}

// WillResize reports whether the image exceeds the bounding box.
func (m *Metadata) WillResize() bool {
	return m.FitWidth != m.Width || m.FitHeight != m.Height
}

// Inspector reads image metadata. EXIF is read with goexif first; when that
// finds nothing and exiftool is enabled, the exiftool binary is asked.
type Inspector struct {
	logger      logrus.FieldLogger
	useExiftool bool
}

// NewInspector returns an Inspector. useExiftool enables the exiftool
// fallback; a missing binary is logged and otherwise ignored.
func NewInspector(logger logrus.FieldLogger, useExiftool bool) *Inspector {
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		logger = l
	}
	return &Inspector{logger: logger, useExiftool: useExiftool}
}

// Inspect decodes path and fills in its geometry, the size it would be
// fitted to inside maxWidth x maxHeight, and any EXIF fields found.
func (i *Inspector) Inspect(path string, maxWidth, maxHeight int) (*Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}

	decoded, err := compressor.Decode(path)
	if err != nil {
		return nil, err
	}

	m := &Metadata{
		Path:   path,
		Format: decoded.Format,
		Size:   info.Size(),
		Width:  decoded.Width,
		Height: decoded.Height,
		Mode:   decoded.Mode,
		Source: SourceNone,
	}
	m.FitWidth, m.FitHeight = compressor.FitDimensions(decoded.Width, decoded.Height, maxWidth, maxHeight)

	err = i.readGoExif(m)
	if err == nil {
		return m, nil
	}
	i.logger.Debugf("goexif found nothing in %s: %v", path, err)

	if i.useExiftool {
		if err := i.readExiftool(m); err != nil {
			i.logger.Debugf("exiftool found nothing in %s: %v", path, err)
		}
	}
	return m, nil
}

// readGoExif fills the EXIF fields of m using the rwcarlsen/goexif library.
func (i *Inspector) readGoExif(m *Metadata) error {
	file, err := os.Open(m.Path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	x, err := exif.Decode(file)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoEXIF, err)
	}

	m.Source = SourceGoExif
	m.Camera = joinCamera(exifString(x, exif.Make), exifString(x, exif.Model))
	m.Software = exifString(x, exif.Software)
	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil {
			m.Orientation = v
		}
	}

	if tm, err := x.DateTime(); err == nil {
		m.TakenAt = &tm
	} else if date := parseEXIFDateTime(exifString(x, exif.DateTimeDigitized)); date != nil {
		m.TakenAt = date
	}
	return nil
}

// readExiftool fills the EXIF fields of m by running exiftool.
func (i *Inspector) readExiftool(m *Metadata) error {
	et, err := exiftool.NewExiftool()
	if err != nil {
		i.logger.Warnf("exiftool is not available: %v", err)
		return err
	}
	defer et.Close()

	files := et.ExtractMetadata(m.Path)
	if len(files) == 0 {
		return ErrNoEXIF
	}
	if files[0].Err != nil {
		return files[0].Err
	}
	fm := files[0]

	maker, _ := fm.GetString("Make")
	model, _ := fm.GetString("Model")
	camera := joinCamera(maker, model)
	software, _ := fm.GetString("Software")
	taken, _ := fm.GetString("DateTimeOriginal")
	if camera == "" && software == "" && taken == "" {
		return ErrNoEXIF
	}

	m.Source = SourceExiftool
	m.Camera = camera
	m.Software = software
	m.TakenAt = parseEXIFDateTime(taken)
	if v, err := fm.GetInt("Orientation"); err == nil {
		m.Orientation = int(v)
	}
	return nil
}

func exifString(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}

// joinCamera builds "Make Model", skipping the make when the model already
// starts with it.
func joinCamera(maker, model string) string {
	maker = strings.TrimSpace(maker)
	model = strings.TrimSpace(model)
	switch {
	case model == "":
		return maker
	case maker == "" || strings.HasPrefix(model, maker):
		return model
	default:
		return maker + " " + model
	}
}

// parseEXIFDateTime parses an EXIF date time string. Returns nil if parsing fails.
func parseEXIFDateTime(dateStr string) *time.Time {
	if dateStr == "" {
		return nil
	}

	formats := []string{
		"2006:01:02 15:04:05",
		"2006-01-02 15:04:05",
		"2006:01:02",
		"2006-01-02",
		time.RFC3339,
	}

	for _, format := range formats {
		if date, err := time.ParseInLocation(format, dateStr, time.Local); err == nil {
			return &date
		}
	}
	return nil
}
