package ingestion

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/waiwai/settlement-bridge/internal/domain"
)

var allowedExtensions = map[string]bool{".xlsx": true, ".xls": true}

// ValidateFileName accepts .xlsx and .xls names, case-insensitively.
func ValidateFileName(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedExtensions[ext] {
		return fmt.Errorf("%w: %q (only .xlsx or .xls)", domain.ErrUnsupportedFile, name)
	}
	return nil
}

// ValidateFileSize rejects empty files and files above maxBytes.
func ValidateFileSize(size, maxBytes int64) error {
	if size <= 0 {
		return domain.ErrEmptyFile
	}
	if size > maxBytes {
		return fmt.Errorf("%w: %.2f MB exceeds %.2f MB", domain.ErrFileTooLarge, mb(size), mb(maxBytes))
	}
	return nil
}

func mb(n int64) float64 { return float64(n) / (1024 * 1024) }
