package services

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"

	"innovation-review-api/models"
)

// WriteSubmissionsArchive streams the latest submission of every assignment into a zip.
// Entries are named judge_<id>_v<version>_<filename>. Returns the number of files written.
func (m *FileExchangeManager) WriteSubmissionsArchive(ctx context.Context, w io.Writer, assignments []models.Assignment) (int, error) {
	zw := zip.NewWriter(w)
	written := 0

	for i := range assignments {
		a := &assignments[i]
		if !a.HasSubmission() {
			continue
		}
		if err := ctx.Err(); err != nil {
			zw.Close()
			return written, err
		}

		path, name, err := m.SubmissionFile(a, 0)
		if err != nil {
			zw.Close()
			return written, err
		}
		if err := addZipEntry(zw, path, fmt.Sprintf("judge_%d_v%d_%s", a.JudgeID, a.SubmissionVersion, name), a); err != nil {
			zw.Close()
			return written, err
		}
		written++
	}

	if err := zw.Close(); err != nil {
		return written, err
	}
	return written, nil
}

func addZipEntry(zw *zip.Writer, path, entryName string, a *models.Assignment) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open submission %d: %w", a.ID, err)
	}
	defer f.Close()

	header := &zip.FileHeader{Name: entryName, Method: zip.Deflate}
	if a.SubmissionUploadedAt != nil {
		header.Modified = *a.SubmissionUploadedAt
	}
	entry, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, f)
	return err
}
