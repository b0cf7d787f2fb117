package upload

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

var (
	ErrTooLarge      = errors.New("upload too large")
	ErrTooManyFiles  = errors.New("too many files")
	ErrMultipleFiles = errors.New("multiple files are not allowed")
)

// ParseForm parses a multipart body of at most maxBytes.
func ParseForm(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return ErrTooLarge
		}
		return fmt.Errorf("parse multipart form: %w", err)
	}

	return nil
}

// Files reads every file sent under field, up to limit files.
func Files(r *http.Request, field string, limit int) ([][]byte, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}

	headers := r.MultipartForm.File[field]
	if len(headers) > limit {
		return nil, ErrTooManyFiles
	}

	out := make([][]byte, 0, len(headers))
	for _, fh := range headers {
		data, err := read(fh)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}

	return out, nil
}

// File reads exactly one file from field.
func File(r *http.Request, field string) ([]byte, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return nil, http.ErrMissingFile
	}

	headers := r.MultipartForm.File[field]
	if len(headers) > 1 {
		return nil, ErrMultipleFiles
	}

	return read(headers[0])
}

func read(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
	}

	return data, nil
}
