package http

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"gestionale/internal/listing"
	"gestionale/internal/screens"
)

const (
	// maxUploadSize bounds a dialog submission including its files.
	maxUploadSize = 16 << 20
	maxFormMemory = 8 << 20
)

var errNoLink = errors.New("missing pagination link")

// sanitizeInput removes control characters (except tab, newline and
// carriage return) and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func sanitizeValues(in url.Values) url.Values {
	out := make(url.Values, len(in))
	for k, vs := range in {
		for _, v := range vs {
			out.Add(k, sanitizeInput(v))
		}
	}
	return out
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

// ParseSubmission reads a create/edit dialog form into a payload holding
// only the fields the screen declares.
func ParseSubmission(w http.ResponseWriter, r *http.Request, fields []screens.Field) (listing.Payload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	var files []listing.File
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			return listing.Payload{}, fmt.Errorf("parse multipart form: %w", err)
		}
		for _, f := range fields {
			if f.Kind != screens.File {
				continue
			}
			file, err := readFile(r, f.Name)
			if err != nil {
				return listing.Payload{}, err
			}
			if file != nil {
				files = append(files, *file)
			}
		}
	} else if err := r.ParseForm(); err != nil {
		return listing.Payload{}, fmt.Errorf("parse form: %w", err)
	}

	return screens.BuildPayload(fields, sanitizeValues(r.PostForm), files), nil
}

func readFile(r *http.Request, field string) (*listing.File, error) {
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", field, err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", field, err)
	}
	if len(content) == 0 {
		return nil, nil
	}
	ct := hdr.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(content)
	}
	return &listing.File{
		Field:       field,
		Filename:    hdr.Filename,
		ContentType: ct,
		Content:     content,
	}, nil
}

// ParseLinkIndex reads the position of the clicked pagination link.
func ParseLinkIndex(q url.Values) (int, error) {
	raw := strings.TrimSpace(q.Get("link"))
	if raw == "" {
		return 0, errNoLink
	}
	i, err := strconv.Atoi(raw)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid pagination link %q", raw)
	}
	return i, nil
}

// isHTMX reports whether r was issued by htmx rather than a full navigation.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
