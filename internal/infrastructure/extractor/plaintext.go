package extractor

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/kirillkom/docqa/internal/core/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func extractPlainText(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !utf8.Valid(raw) {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "plain text", fmt.Errorf("content is not valid UTF-8"))
	}
	return string(raw), nil
}
