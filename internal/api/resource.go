package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"gestionale/internal/listing"
)

// Resource is one backend endpoint serving records of type T. It is both
// the listing source and the mutator of a screen.
type Resource[T any] struct {
	client   *Client
	endpoint string
}

var (
	_ listing.Source[struct{}] = (*Resource[struct{}])(nil)
	_ listing.Mutator          = (*Resource[struct{}])(nil)
)

// NewResource binds endpoint (e.g. "expenses") to client.
func NewResource[T any](client *Client, endpoint string) *Resource[T] {
	return &Resource[T]{client: client, endpoint: strings.Trim(endpoint, "/")}
}

// Endpoint returns the resource path relative to the backend root.
func (r *Resource[T]) Endpoint() string { return r.endpoint }

type pagedData[T any] struct {
	Data  []T                `json:"data"`
	Links []listing.PageLink `json:"links"`
}

// List reads page n: GET <endpoint>?page=n.
func (r *Resource[T]) List(ctx context.Context, page int) (listing.Page[T], error) {
	if page < 1 {
		page = 1
	}
	var data pagedData[T]
	q := url.Values{"page": {strconv.Itoa(page)}}
	if err := r.client.getJSON(ctx, r.endpoint, q, &data); err != nil {
		return listing.Page[T]{}, err
	}
	if data.Data == nil {
		data.Data = []T{}
	}
	return listing.Page[T]{Items: data.Data, Links: data.Links}, nil
}

// Search runs a free-text query: GET <endpoint>?query=q.
func (r *Resource[T]) Search(ctx context.Context, query string) ([]T, error) {
	var items []T
	if err := r.client.getJSON(ctx, r.endpoint, url.Values{"query": {query}}, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Create posts to <endpoint>/store.
func (r *Resource[T]) Create(ctx context.Context, p listing.Payload) (listing.Result, error) {
	return r.submit(ctx, "store", p)
}

// Update posts to <endpoint>/update with the record id among the fields.
func (r *Resource[T]) Update(ctx context.Context, id string, p listing.Payload) (listing.Result, error) {
	fields := url.Values{}
	for k, v := range p.Fields {
		fields[k] = append([]string(nil), v...)
	}
	fields.Set("id", id)
	p.Fields = fields
	res, err := r.submit(ctx, "update", p)
	if err == nil && res.ID == "" {
		res.ID = id
	}
	return res, err
}

// Delete posts {"id": id} as JSON to <endpoint>/delete.
func (r *Resource[T]) Delete(ctx context.Context, id string) (listing.Result, error) {
	var body any = map[string]string{"id": id}
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		body = map[string]int64{"id": n}
	}
	var data idData
	path := r.endpoint + "/delete"
	msg, err := r.client.postJSON(ctx, path, body, &data)
	if err != nil {
		return listing.Result{}, err
	}
	return listing.Result{Message: msg, ID: id}, nil
}

type idData struct {
	ID json.RawMessage `json:"id"`
}

func (d idData) String() string {
	s := strings.Trim(string(d.ID), `"`)
	if s == "null" {
		return ""
	}
	return s
}

func (r *Resource[T]) submit(ctx context.Context, action string, p listing.Payload) (listing.Result, error) {
	path := r.endpoint + "/" + action
	body, contentType, err := encodePayload(p)
	if err != nil {
		return listing.Result{}, fmt.Errorf("encode %s: %w", path, err)
	}
	req, err := r.client.newRequest(ctx, http.MethodPost, path, nil, body, contentType)
	if err != nil {
		return listing.Result{}, err
	}
	var data idData
	msg, err := r.client.do(req, path, &data)
	if err != nil {
		return listing.Result{}, err
	}
	return listing.Result{Message: msg, ID: data.String()}, nil
}

// encodePayload renders p as urlencoded form, or multipart when it carries
// files.
func encodePayload(p listing.Payload) (io.Reader, string, error) {
	if !p.HasFiles() {
		return strings.NewReader(p.Fields.Encode()), "application/x-www-form-urlencoded", nil
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	keys := make([]string, 0, len(p.Fields))
	for k := range p.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range p.Fields[k] {
			if err := w.WriteField(k, v); err != nil {
				return nil, "", err
			}
		}
	}
	for _, f := range p.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.Filename))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
