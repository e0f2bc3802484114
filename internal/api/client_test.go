package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"gestionale/internal/core"
	"gestionale/internal/listing"
)

type capturedRequest struct {
	Method      string
	Path        string
	Query       url.Values
	Auth        string
	ContentType string
	Body        []byte
}

// backend is a programmable stand-in for the REST API.
type backend struct {
	mu       sync.Mutex
	requests []capturedRequest
	status   int
	body     string
}

func newBackend(t *testing.T, status int, body string) (*backend, *Client) {
	t.Helper()
	b := &backend{status: status, body: body}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.requests = append(b.requests, capturedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			Query:       r.URL.Query(),
			Auth:        r.Header.Get("Authorization"),
			ContentType: r.Header.Get("Content-Type"),
			Body:        raw,
		})
		status, body := b.status, b.body
		b.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	c, err := New(ClientConfig{BaseURL: srv.URL + "/api", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return b, c.WithToken("tok-123")
}

func (b *backend) last(t *testing.T) capturedRequest {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.requests) == 0 {
		t.Fatal("no request reached the backend")
	}
	return b.requests[len(b.requests)-1]
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	for _, raw := range []string{"", "/api", "localhost:8000"} {
		if _, err := New(ClientConfig{BaseURL: raw}); err == nil {
			t.Errorf("New(%q) should fail", raw)
		}
	}
}

func TestResource_List(t *testing.T) {
	b, c := newBackend(t, http.StatusOK, `{"data":{"data":[
		{"id":1,"title":"Taxi","amount":"12.50","date":"2024-03-01","category_id":2,"category":{"id":2,"name":"Travel"}},
		{"id":2,"title":"Hotel","amount":80,"date":"2024-03-02","category_id":2}
	],"links":[
		{"url":null,"label":"&laquo; Previous","active":false},
		{"url":"http://x/api/expenses?page=1","label":"1","active":true},
		{"url":"http://x/api/expenses?page=2","label":"2","active":false}
	]}}`)

	page, err := NewResource[core.Expense](c, "expenses").List(context.Background(), 3)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	req := b.last(t)
	if req.Method != http.MethodGet || req.Path != "/api/expenses" || req.Query.Get("page") != "3" {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Auth != "Bearer tok-123" {
		t.Fatalf("Authorization = %q", req.Auth)
	}
	if len(page.Items) != 2 || page.Items[0].Amount.Cents != 1250 || page.Items[1].Amount.Cents != 8000 {
		t.Fatalf("items = %+v", page.Items)
	}
	if page.Items[0].Category == nil || page.Items[0].Category.Name != "Travel" {
		t.Fatalf("nested category not decoded: %+v", page.Items[0])
	}
	if len(page.Links) != 3 || !page.Links[0].Disabled() || !page.Links[1].Disabled() || page.Links[2].Disabled() {
		t.Fatalf("links = %+v", page.Links)
	}
}

func TestResource_SearchEmpty(t *testing.T) {
	b, c := newBackend(t, http.StatusOK, `{"data":[]}`)
	items, err := NewResource[core.Ticket](c, "tickets").Search(context.Background(), "printer jam")
	if err != nil {
		t.Fatal(err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("items = %#v, want empty non-nil", items)
	}
	if got := b.last(t).Query.Get("query"); got != "printer jam" {
		t.Fatalf("query = %q", got)
	}
}

func TestResource_CreateForm(t *testing.T) {
	b, c := newBackend(t, http.StatusCreated, `{"message":"Expense created","data":{"id":42}}`)
	res, err := NewResource[core.Expense](c, "expenses").Create(context.Background(), listing.Payload{
		Fields: url.Values{"title": {"Train"}, "amount": {"9.90"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Message != "Expense created" || res.ID != "42" {
		t.Fatalf("result = %+v", res)
	}
	req := b.last(t)
	if req.Path != "/api/expenses/store" || req.ContentType != "application/x-www-form-urlencoded" {
		t.Fatalf("request = %+v", req)
	}
	form, _ := url.ParseQuery(string(req.Body))
	if form.Get("title") != "Train" || form.Get("amount") != "9.90" {
		t.Fatalf("form = %v", form)
	}
}

func TestResource_UpdateMultipart(t *testing.T) {
	b, c := newBackend(t, http.StatusOK, `{"message":"Updated"}`)
	fields := url.Values{"hotel_name": {"Grand"}}
	res, err := NewResource[core.HotelExpense](c, "hotel-expenses").Update(context.Background(), "7", listing.Payload{
		Fields: fields,
		Files:  []listing.File{{Field: "image", Filename: "r.png", ContentType: "image/png", Content: []byte("PNG")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.ID != "7" {
		t.Fatalf("result id = %q", res.ID)
	}
	if fields.Get("id") != "" {
		t.Fatal("Update must not mutate the caller's fields")
	}
	req := b.last(t)
	if req.Path != "/api/hotel-expenses/update" || !strings.HasPrefix(req.ContentType, "multipart/form-data") {
		t.Fatalf("request = %+v", req)
	}
	hr := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(string(req.Body)))
	hr.Header.Set("Content-Type", req.ContentType)
	if err := hr.ParseMultipartForm(1 << 20); err != nil {
		t.Fatal(err)
	}
	if hr.FormValue("id") != "7" || hr.FormValue("hotel_name") != "Grand" {
		t.Fatalf("multipart fields = %v", hr.MultipartForm.Value)
	}
	if fh := hr.MultipartForm.File["image"]; len(fh) != 1 || fh[0].Filename != "r.png" {
		t.Fatalf("multipart file = %+v", fh)
	}
}

func TestResource_DeleteSendsJSONID(t *testing.T) {
	b, c := newBackend(t, http.StatusOK, `{"message":"Deleted"}`)
	res, err := NewResource[core.Category](c, "expense-categories").Delete(context.Background(), "5")
	if err != nil {
		t.Fatal(err)
	}
	if res.Message != "Deleted" {
		t.Fatalf("message = %q", res.Message)
	}
	req := b.last(t)
	if req.Path != "/api/expense-categories/delete" || req.ContentType != "application/json" {
		t.Fatalf("request = %+v", req)
	}
	var body map[string]any
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatal(err)
	}
	if body["id"] != float64(5) {
		t.Fatalf("body = %v", body)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "validation",
			status: http.StatusUnprocessableEntity,
			body:   `{"message":"The given data was invalid.","errors":{"title":["The title field is required."],"amount":["a","b"]}}`,
			check: func(t *testing.T, err error) {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("want *ValidationError, got %T", err)
				}
				if len(ve.FieldErrors()["amount"]) != 2 || ve.UserMessage() != "The given data was invalid." {
					t.Fatalf("validation error = %+v", ve)
				}
			},
		},
		{
			name:   "general",
			status: http.StatusConflict,
			body:   `{"message":"Category is in use"}`,
			check: func(t *testing.T, err error) {
				var ae *APIError
				if !errors.As(err, &ae) || ae.Status != http.StatusConflict || ae.UserMessage() != "Category is in use" {
					t.Fatalf("got %#v", err)
				}
			},
		},
		{
			name:   "html error page",
			status: http.StatusBadGateway,
			body:   `<html>bad gateway</html>`,
			check: func(t *testing.T, err error) {
				var ae *APIError
				if !errors.As(err, &ae) || ae.Message != "" {
					t.Fatalf("got %#v", err)
				}
			},
		},
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"message":"Unauthenticated."}`,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrUnauthorized) || !listing.IsUnauthorized(err) {
					t.Fatalf("got %v", err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c := newBackend(t, tt.status, tt.body)
			_, err := NewResource[core.Category](c, "expense-categories").Create(context.Background(), listing.Payload{})
			if err == nil {
				t.Fatal("expected error")
			}
			tt.check(t, err)
		})
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(ClientConfig{BaseURL: base, Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewResource[core.Ticket](c, "tickets").List(context.Background(), 1)
	if !IsNetwork(err) {
		t.Fatalf("want network error, got %v", err)
	}
	if listing.IsUnauthorized(err) {
		t.Fatal("network error must not look unauthorized")
	}
}

func TestLoginLogoutOptions(t *testing.T) {
	b, c := newBackend(t, http.StatusOK, `{"data":{"token":"abc","user":{"id":1,"name":"Ada","email":"ada@example.com",
		"role":{"id":1,"name":"Accountant","permissions":[{"id":1,"name":"expense-list"}]}}}}`)
	res, err := c.Login(context.Background(), Credentials{Email: "ada@example.com", Password: "pw"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Token != "abc" || res.User.RoleName() != "Accountant" || len(res.User.Role.PermissionNames()) != 1 {
		t.Fatalf("login result = %+v", res)
	}
	if b.last(t).Path != "/api/login" {
		t.Fatalf("path = %q", b.last(t).Path)
	}

	b.mu.Lock()
	b.body = `{"data":[{"id":1,"name":"Travel"},{"id":2,"name":"Meals"}]}`
	b.mu.Unlock()
	opts, err := c.Options(context.Background(), "expense-categories")
	if err != nil || len(opts) != 2 || opts[1].Name != "Meals" {
		t.Fatalf("Options() = %v, %v", opts, err)
	}
	if b.last(t).Path != "/api/expense-categories/all" {
		t.Fatalf("options path = %q", b.last(t).Path)
	}

	b.mu.Lock()
	b.body = `{"message":"Logged out"}`
	b.mu.Unlock()
	if err := c.Logout(context.Background()); err != nil {
		t.Fatal(err)
	}
	if b.last(t).Path != "/api/logout" {
		t.Fatalf("logout path = %q", b.last(t).Path)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	_, c := newBackend(t, http.StatusUnauthorized, `{"message":"Invalid"}`)
	_, err := c.Login(context.Background(), Credentials{Email: "x", Password: "y"})
	if err == nil || listing.IsUnauthorized(err) {
		t.Fatalf("bad credentials must not look like an expired session: %v", err)
	}
}

func TestObserver(t *testing.T) {
	var gotStatus int
	var gotEndpoint string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":[]}`)
	}))
	defer srv.Close()
	c, err := New(ClientConfig{BaseURL: srv.URL, Observer: func(method, endpoint string, status int, _ time.Duration) {
		gotEndpoint, gotStatus = endpoint, status
	}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewResource[core.Role](c, "roles").Search(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	if gotEndpoint != "roles" || gotStatus != http.StatusOK {
		t.Fatalf("observer got %q %d", gotEndpoint, gotStatus)
	}
}
