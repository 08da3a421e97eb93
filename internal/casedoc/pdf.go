package casedoc

import (
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"caseflow/internal/util"
)

// ExtractText pulls the plain text out of a case PDF.
func ExtractText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return "", fmt.Errorf("read extracted text: %w", err)
	}
	text := util.SanitizeText(strings.TrimSpace(buf.String()))
	if text == "" {
		return "", util.ErrNoExtractableText
	}
	return text, nil
}
