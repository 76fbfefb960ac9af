// Package tesseract recognizes page text with the tesseract engine through gosseract.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/subtrack/nativebridge/internal/ocr"
	"github.com/subtrack/nativebridge/internal/scan"
)

// Recognizer implements scan.Recognizer. Each page gets its own client so
// pages can be recognized concurrently.
type Recognizer struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// New returns a recognizer restricted to the given tesseract language codes.
func New(languages []string) *Recognizer {
	return &Recognizer{languages: languages, clientFactory: gosseract.NewClient}
}

// Languages returns the tesseract language codes in use.
func (r *Recognizer) Languages() []string { return r.languages }

func (r *Recognizer) Recognize(ctx context.Context, page scan.Page) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	img, err := ocr.Normalize(page.Image)
	if err != nil {
		return "", err
	}

	c := r.clientFactory()
	defer c.Close()

	if len(r.languages) > 0 {
		if err := c.SetLanguage(r.languages...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		return "", fmt.Errorf("set page segmentation: %w", err)
	}
	if err := c.SetImageFromBytes(img); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}

	lines, err := textLines(c)
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return ocr.JoinLines(lines), nil
}

// textLines returns the best candidate of every recognized line.
func textLines(c *gosseract.Client) ([]string, error) {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err == nil && len(boxes) > 0 {
		lines := make([]string, 0, len(boxes))
		for _, b := range boxes {
			lines = append(lines, b.Word)
		}
		return lines, nil
	}

	text, err := c.Text()
	if err != nil {
		return nil, err
	}
	return strings.Split(text, "\n"), nil
}
