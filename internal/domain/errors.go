package domain

import "errors"

// PreviewLimit caps itemised error and warning lists returned to callers.
const PreviewLimit = 10

var (
	ErrNoRecords       = errors.New("no records provided")
	ErrEmptyWorkbook   = errors.New("workbook has no data")
	ErrHeaderOnly      = errors.New("workbook has only a header row")
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrEmptyFile       = errors.New("file is empty")
	ErrBatchNotFound   = errors.New("batch not found")
	ErrLegacyConnect   = errors.New("legacy store connection failed")

	// ErrBatchNotTransferable is returned when a batch is already being
	// transferred or has completed.
	ErrBatchNotTransferable = errors.New("batch is not awaiting transfer")
)

// Preview returns at most PreviewLimit entries of list.
func Preview(list []string) []string {
	if len(list) <= PreviewLimit {
		return list
	}
	return list[:PreviewLimit]
}
