// Package scanner enumerates the image files a compression run will process.
package scanner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrInputNotFound is returned when the input directory does not exist.
var ErrInputNotFound = errors.New("input directory not found")

// ImageFile describes one candidate input file.
type ImageFile struct {
	Path      string
	Name      string
	Extension string // lower-cased, with leading dot
	Size      int64
}

// Scanner lists regular files directly inside a directory whose extension
// matches an allow-list. It does not descend into subdirectories.
type Scanner struct {
	extensions map[string]struct{}
	sorted     bool
	logger     logrus.FieldLogger
}

// New returns a Scanner for the given extensions. Extensions are matched
// case-insensitively; sorted orders the result lexicographically by name.
func New(extensions []string, sorted bool, logger logrus.FieldLogger) *Scanner {
	set := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		set[strings.ToLower(ext)] = struct{}{}
	}
	if logger == nil {
		l := logrus.New()
		l.SetOutput(os.Stderr)
		logger = l
	}
	return &Scanner{extensions: set, sorted: sorted, logger: logger}
}

// Scan returns the matching files in dir. A missing dir yields ErrInputNotFound.
// Without sorting, the order is whatever the directory listing yields.
func (s *Scanner) Scan(dir string) ([]ImageFile, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, dir)
		}
		return nil, fmt.Errorf("stat input directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInputNotFound, dir)
	}

	entries, err := readDirUnsorted(dir)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}

	var files []ImageFile
	for _, entry := range entries {
		// Type() carries ModeSymlink for links, so they fail IsRegular too.
		if !entry.Type().IsRegular() {
			continue
		}
		if !s.Matches(entry.Name()) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			s.logger.Warnf("Error accessing path %s: %v", filepath.Join(dir, entry.Name()), err)
			continue
		}
		files = append(files, ImageFile{
			Path:      filepath.Join(dir, entry.Name()),
			Name:      entry.Name(),
			Extension: strings.ToLower(filepath.Ext(entry.Name())),
			Size:      fi.Size(),
		})
	}

	if s.sorted {
		sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	}

	s.logger.Debugf("Scanned %s: %d of %d entries eligible", dir, len(files), len(entries))
	return files, nil
}

// Matches reports whether name ends with one of the allowed extensions.
func (s *Scanner) Matches(name string) bool {
	_, ok := s.extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// readDirUnsorted lists dir in the order the platform returns entries.
// os.ReadDir would sort them by name.
func readDirUnsorted(dir string) ([]os.DirEntry, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.ReadDir(-1)
}
