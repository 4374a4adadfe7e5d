package portal

import (
	"github.com/shopspring/decimal"

	"github.com/zhouzirui/care-portal/backend/internal/model/prescription"
)

var sizeUnits = []string{"Bytes", "KB", "MB", "GB", "TB"}

// FormatFileSize renders a byte count with 1024-based units. Byte counts are
// printed as integers, larger units with two decimals.
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}

	value := decimal.NewFromInt(bytes)
	step := decimal.NewFromInt(1024)
	unit := 0
	for unit < len(sizeUnits)-1 && value.GreaterThanOrEqual(step) {
		value = value.Div(step)
		unit++
	}
	if unit == 0 {
		return value.String() + " " + sizeUnits[0]
	}
	return value.StringFixed(2) + " " + sizeUnits[unit]
}

// UploadBatch is the ordered set of files staged for upload.
type UploadBatch struct {
	files []prescription.FileRef
}

// NewUploadBatch returns a batch holding files.
func NewUploadBatch(files ...prescription.FileRef) UploadBatch {
	var b UploadBatch
	b.Add(files...)
	return b
}

// Add appends files, clamping negative sizes to zero.
func (b *UploadBatch) Add(files ...prescription.FileRef) {
	for _, f := range files {
		if f.SizeBytes < 0 {
			f.SizeBytes = 0
		}
		b.files = append(b.files, f)
	}
}

// Replace discards the current files and stages files instead.
func (b *UploadBatch) Replace(files ...prescription.FileRef) {
	b.files = nil
	b.Add(files...)
}

// Remove drops the file at index. Out of range indexes are ignored and
// reported with false.
func (b *UploadBatch) Remove(index int) bool {
	if index < 0 || index >= len(b.files) {
		return false
	}
	b.files = append(b.files[:index:index], b.files[index+1:]...)
	return true
}

// Clear empties the batch.
func (b *UploadBatch) Clear() {
	b.files = nil
}

// Len returns the number of staged files.
func (b UploadBatch) Len() int {
	return len(b.files)
}

// Empty reports whether nothing is staged.
func (b UploadBatch) Empty() bool {
	return len(b.files) == 0
}

// Files returns a copy of the staged files.
func (b UploadBatch) Files() []prescription.FileRef {
	return append([]prescription.FileRef(nil), b.files...)
}

// Clone returns an independent copy of the batch.
func (b UploadBatch) Clone() UploadBatch {
	return UploadBatch{files: b.Files()}
}

// TotalBytes sums the staged file sizes.
func (b UploadBatch) TotalBytes() int64 {
	var total int64
	for _, f := range b.files {
		total += f.SizeBytes
	}
	return total
}

// FileItem is one row of the upload preview list.
type FileItem struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Size  string `json:"size"`
	Label string `json:"label"`
}

// BatchView is the display form of a batch.
type BatchView struct {
	Items          []FileItem `json:"items"`
	PreviewVisible bool       `json:"previewVisible"`
	TotalSize      string     `json:"totalSize"`
}

// View renders the batch for display. The preview is visible only while at
// least one file is staged.
func (b UploadBatch) View() BatchView {
	items := make([]FileItem, 0, len(b.files))
	for i, f := range b.files {
		size := FormatFileSize(f.SizeBytes)
		items = append(items, FileItem{
			Index: i,
			Name:  f.Name,
			Size:  size,
			Label: f.Name + " (" + size + ")",
		})
	}
	return BatchView{
		Items:          items,
		PreviewVisible: len(items) > 0,
		TotalSize:      FormatFileSize(b.TotalBytes()),
	}
}
