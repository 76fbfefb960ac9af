package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// imageExtensions lists the files a DirectoryScanner picks up.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
	".webp": true,
}

// DirectoryScanner treats a hot folder as the capture device: every image in
// Dir is a page, ordered by file name. An empty folder is a cancelled capture.
type DirectoryScanner struct {
	Dir string
	// Consume removes the page files after they were read.
	Consume bool
}

func (d DirectoryScanner) Available() bool {
	if d.Dir == "" {
		return false
	}
	info, err := os.Stat(d.Dir)
	return err == nil && info.IsDir()
}

func (d DirectoryScanner) Capture(ctx context.Context) (Capture, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return Capture{}, fmt.Errorf("read scan inbox: %w", err)
	}

	var pages []Page
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Capture{}, err
		}
		path := filepath.Join(d.Dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return Capture{}, fmt.Errorf("read page %s: %w", entry.Name(), err)
		}
		pages = append(pages, Page{Index: len(pages), Name: entry.Name(), Image: data})
		paths = append(paths, path)
	}

	if len(pages) == 0 {
		return Capture{Cancelled: true}, nil
	}

	if d.Consume {
		var errs []error
		for _, path := range paths {
			if err := os.Remove(path); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			return Capture{}, fmt.Errorf("consume scan inbox: %w", err)
		}
	}
	return Capture{Pages: pages}, nil
}

// StaticScanner returns a fixed set of pages. No pages is a cancelled capture.
type StaticScanner struct {
	Pages []Page
}

func (s StaticScanner) Available() bool { return true }

func (s StaticScanner) Capture(context.Context) (Capture, error) {
	if len(s.Pages) == 0 {
		return Capture{Cancelled: true}, nil
	}
	return Capture{Pages: s.Pages}, nil
}

// UnavailableScanner is used on hosts without a capture device.
type UnavailableScanner struct{}

func (UnavailableScanner) Available() bool { return false }

func (UnavailableScanner) Capture(context.Context) (Capture, error) {
	return Capture{}, errors.New("document scanner not available")
}
