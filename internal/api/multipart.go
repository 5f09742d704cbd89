package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sahajakrushi/krushi-cli/internal/core"
)

// FormFile is a file part of a multipart request.
type FormFile struct {
	Field       string
	Filename    string
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// FileFromPath describes a local file as a form part named field. The
// upload filename is prefix_{epochMillis}.ext and the content type is
// inferred from the path, then from the file content.
func FileFromPath(field, path, prefix, ext string, at time.Time) (FormFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FormFile{}, &ValidationError{Field: field, Message: err.Error()}
	}
	if info.IsDir() {
		return FormFile{}, &ValidationError{Field: field, Message: fmt.Sprintf("%s is a directory", path)}
	}

	head, err := core.SniffFile(path)
	if err != nil {
		return FormFile{}, &ValidationError{Field: field, Message: err.Error()}
	}

	return FormFile{
		Field:       field,
		Filename:    core.StampedName(prefix, ext, at),
		ContentType: core.GuessMIME(filepath.Base(path), head),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// encodeMultipart builds a multipart/form-data body from plain fields and
// file parts. It returns the body and its content type.
func encodeMultipart(fields map[string]string, files []FormFile) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}

	for _, f := range files {
		if err := writeFilePart(w, f); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeFilePart(w *multipart.Writer, f FormFile) error {
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(f.Field), quoteEscaper.Replace(f.Filename)))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.Field, err)
	}
	defer rc.Close()

	if _, err := io.Copy(part, rc); err != nil {
		return fmt.Errorf("failed to read %s: %w", f.Field, err)
	}
	return nil
}

// PostMultipart posts fields and files as multipart/form-data and decodes
// the envelope's data into T.
func PostMultipart[T any](ctx context.Context, c *CachingClient, endpoint string, fields map[string]string, files []FormFile, opts ...RequestOption) (T, error) {
	var zero T
	body, contentType, err := encodeMultipart(fields, files)
	if err != nil {
		return zero, fmt.Errorf("failed to encode form: %w", err)
	}
	data, err := c.Mutate(ctx, http.MethodPost, endpoint, body, contentType, opts...)
	if err != nil {
		return zero, err
	}
	return decodeData[T](data)
}
