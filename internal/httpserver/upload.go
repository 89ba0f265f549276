package httpserver

import (
	"fmt"
	"io"
	"net/http"
)

// MaxUploadBytes bounds media uploads. Anything larger is rejected before it
// reaches storage.
const MaxUploadBytes = 10 << 20 // 10 MiB

// ReadUpload extracts one uploaded file from a multipart form. The returned
// error is safe to show to the client.
func ReadUpload(r *http.Request, field string) (data []byte, filename, contentType string, err error) {
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		return nil, "", "", fmt.Errorf("parsing multipart form: %w", err)
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", "", fmt.Errorf("missing file field %q", field)
	}
	defer file.Close()

	data, err = io.ReadAll(io.LimitReader(file, MaxUploadBytes+1))
	if err != nil {
		return nil, "", "", fmt.Errorf("reading upload: %w", err)
	}
	if int64(len(data)) > MaxUploadBytes {
		return nil, "", "", fmt.Errorf("upload exceeds %d bytes", MaxUploadBytes)
	}

	return data, header.Filename, header.Header.Get("Content-Type"), nil
}
