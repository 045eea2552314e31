package embedding

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	"github.com/ledongthuc/pdf"

	"github.com/kailas-cloud/filedex/internal/config"
)

// content is the closed set of extraction strategies. A file's content type
// is resolved to exactly one variant before extraction; there is no
// open-ended string dispatch at the call sites.
type content interface {
	// extract produces the text that stands in for the file's semantics.
	extract() (string, error)
}

// resolveContent picks the extraction variant for a content type.
func resolveContent(path, contentType string, cfg config.VectorConfig) content {
	switch {
	case strings.HasPrefix(contentType, "text/"):
		return textContent{path: path}
	case strings.HasPrefix(contentType, "image/"):
		return imageContent{path: path, cfg: cfg}
	case contentType == "application/pdf":
		return pdfContent{path: path}
	default:
		return genericContent{path: path}
	}
}

// textContent reads a file as UTF-8 text, falling back to a permissive
// Latin-1 decode when the bytes are not valid UTF-8.
type textContent struct {
	path string
}

func (c textContent) extract() (string, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return "", fmt.Errorf("read text file: %w", err)
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	return decodeLatin1(data), nil
}

// decodeLatin1 maps each byte to the equivalent code point. Every byte
// sequence decodes, which makes this the permissive fallback encoding.
func decodeLatin1(data []byte) string {
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}

// imageContent decodes an image, normalizes it to the configured size and
// format, and represents it as a base64 placeholder string for the text
// embedding model. Known limitation: this is not a vision embedding; images
// with similar bytes embed similarly, not images with similar content.
type imageContent struct {
	path string
	cfg  config.VectorConfig
}

func (c imageContent) extract() (string, error) {
	img, err := imaging.Open(c.path)
	if err != nil {
		// Decode failures propagate; there is no fallback for images.
		return "", fmt.Errorf("decode image: %w", err)
	}

	// Resize to the canonical dimensions; imaging returns NRGBA, which also
	// normalizes the color mode.
	img = imaging.Resize(img, c.cfg.ImageWidth, c.cfg.ImageHeight, imaging.Lanczos)

	format, err := imaging.FormatFromExtension(c.cfg.ImageFormat)
	if err != nil {
		return "", fmt.Errorf("image format %q: %w", c.cfg.ImageFormat, err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}

	return "image: " + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// pdfContent extracts text per page; extraction failures degrade to a
// synthetic description instead of failing the embedding.
type pdfContent struct {
	path string
}

func (c pdfContent) extract() (string, error) {
	text, err := extractPDFText(c.path)
	if err != nil || strings.TrimSpace(text) == "" {
		// Scanned or unreadable PDF: describe the file instead.
		return describeFile(c.path, "PDF document"), nil
	}
	return text, nil
}

// extractPDFText concatenates non-empty pages with page-boundary markers.
// Pages that fail to extract are skipped; only a whole-document failure
// reaches the caller. The pdf library panics on some malformed inputs, so
// the recover is part of the degrade path.
func extractPDFText(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf extraction panic: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer func() { _ = f.Close() }()

	var sb strings.Builder
	for pageNum := 1; pageNum <= r.NumPage(); pageNum++ {
		page := r.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		pageText, pageErr := page.GetPlainText(nil)
		if pageErr != nil || strings.TrimSpace(pageText) == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n--- Page %d ---\n", pageNum)
		sb.WriteString(pageText)
	}
	return sb.String(), nil
}

// genericContent tries a plain text read and falls back to a synthetic
// name-and-size description for binary data.
type genericContent struct {
	path string
}

func (c genericContent) extract() (string, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	if utf8.Valid(data) && !bytes.ContainsRune(data, 0) {
		return string(data), nil
	}
	return describeFile(c.path, "file"), nil
}

// describeFile builds the synthetic fallback text from file name and size.
func describeFile(path, label string) string {
	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	return fmt.Sprintf("%s: %s, size: %d bytes", label, filepath.Base(path), size)
}
