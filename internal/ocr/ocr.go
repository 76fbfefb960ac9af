// Package ocr holds the engine-independent helpers of page recognition:
// image normalization, language selection and text assembly.
package ocr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/text/language"
)

// Normalize decodes a page image in any supported format and re-encodes it as PNG.
func Normalize(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty page image")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode page image: %w", err)
	}
	if format == "png" {
		return data, nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode %s page as png: %w", format, err)
	}
	return buf.Bytes(), nil
}

// TesseractLanguages maps BCP-47 preferences such as "en-US" to tesseract
// language codes, keeping order and dropping duplicates and unparsable tags.
// An empty result falls back to English.
func TesseractLanguages(preferences []string) []string {
	seen := make(map[string]bool, len(preferences))
	var out []string
	for _, pref := range preferences {
		tag, err := language.Parse(pref)
		if err != nil {
			continue
		}
		code := tesseractCode(tag)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	if len(out) == 0 {
		return []string{"eng"}
	}
	return out
}

func tesseractCode(tag language.Tag) string {
	base, _ := tag.Base()
	switch base.String() {
	case "und":
		return ""
	case "zh":
		script, _ := tag.Script()
		if script.String() == "Hant" {
			return "chi_tra"
		}
		return "chi_sim"
	default:
		return base.ISO3()
	}
}

// JoinLines trims every line and joins the non-blank ones with newlines.
func JoinLines(lines []string) string {
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
