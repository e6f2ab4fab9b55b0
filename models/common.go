package models

import (
	"strings"
	"time"
)

// FileDescriptor describes one stored file.
type FileDescriptor struct {
	StoredPath   string    `json:"stored_path"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type"`
	FileSize     int64     `json:"file_size"`
	UploadedBy   int       `json:"uploaded_by"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

const (
	MimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimePDF  = "application/pdf"
	MimeZip  = "application/zip"
)

// MimeForExtension maps the extensions accepted by the review workflow to their mime type.
func MimeForExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".docx":
		return MimeDocx
	case ".pdf":
		return MimePDF
	default:
		return "application/octet-stream"
	}
}

func (f *FileDescriptor) GetFileSizeInMB() float64 {
	return float64(f.FileSize) / (1024 * 1024)
}
