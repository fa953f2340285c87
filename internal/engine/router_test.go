package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"crudkit/internal/store"
)

func newTestApp(t *testing.T, s *store.Store, opts ...Option) (*fiber.App, *Router) {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zerolog.Nop())})
	r := NewRouter(app, RouterOptions{BasePath: "/api/", Version: 1, DefaultPageSize: 10, MaxPageSize: 50})
	r.Mount("books", newBookController(t, s, opts...))
	return app, r
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

func decodeError(t *testing.T, resp *http.Response) *AppError {
	t.Helper()
	raw, _ := io.ReadAll(resp.Body)
	var errResp ErrorResponse
	if err := json.Unmarshal(raw, &errResp); err != nil {
		t.Fatalf("failed to parse error response %q: %v", raw, err)
	}
	if errResp.Error == nil {
		t.Fatalf("expected error envelope, got %s", raw)
	}
	return errResp.Error
}

func TestRouter_Path(t *testing.T) {
	r := NewRouter(fiber.New(), RouterOptions{BasePath: "/api/", Version: 2})

	cases := []struct {
		opts []MountOption
		want string
	}{
		{nil, "/api/v2/books"},
		{[]MountOption{WithVersion(0)}, "/api/books"},
		{[]MountOption{WithBasePath("")}, "/v2/books"},
		{[]MountOption{WithBasePath("//admin//"), WithVersion(3)}, "/admin/v3/books"},
	}
	for _, tc := range cases {
		if got := r.Path("books", tc.opts...); got != tc.want {
			t.Errorf("Path(%v) = %q, want %q", tc.opts, got, tc.want)
		}
	}
}

func TestRouter_CreateReadUpdateDelete(t *testing.T) {
	s := newTestStore(t)
	app, _ := newTestApp(t, s)

	resp := doRequest(t, app, "POST", "/api/v1/books", `{"title":"Dune","pageCount":412}`)
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "{}" {
		t.Fatalf("expected empty object, got %s", body)
	}

	resp = doRequest(t, app, "GET", "/api/v1/books/1", "")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var row map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&row); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if row["title"] != "Dune" || row["pageCount"] != float64(412) {
		t.Fatalf("unexpected row: %v", row)
	}

	for _, method := range []string{"PUT", "PATCH"} {
		resp = doRequest(t, app, method, "/api/v1/books/1", `{"title":"Dune Messiah"}`)
		if resp.StatusCode != 204 {
			t.Fatalf("%s: expected 204, got %d", method, resp.StatusCode)
		}
	}

	resp = doRequest(t, app, "DELETE", "/api/v1/books/1", "")
	if resp.StatusCode != 204 {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp = doRequest(t, app, "GET", "/api/v1/books/1", "")
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
	if appErr := decodeError(t, resp); appErr.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %s", appErr.Code)
	}
}

func TestRouter_BadBodies(t *testing.T) {
	s := newTestStore(t)
	app, _ := newTestApp(t, s)

	for _, body := range []string{"", "{not json", "[1,2]", "null"} {
		resp := doRequest(t, app, "POST", "/api/v1/books", body)
		if resp.StatusCode != 400 {
			t.Fatalf("body %q: expected 400, got %d", body, resp.StatusCode)
		}
		if appErr := decodeError(t, resp); appErr.Code != "BAD_REQUEST" {
			t.Fatalf("body %q: expected BAD_REQUEST, got %s", body, appErr.Code)
		}
	}

	resp := doRequest(t, app, "POST", "/api/v1/books", `{"title":null}`)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400 for null title, got %d", resp.StatusCode)
	}
	appErr := decodeError(t, resp)
	if len(appErr.Details) != 1 || appErr.Details[0].Field != "title" {
		t.Fatalf("expected detail for title, got %+v", appErr.Details)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	s := newTestStore(t)
	app, _ := newTestApp(t, s, WithCapabilities(Capabilities{Read: true}))

	resp := doRequest(t, app, "POST", "/api/v1/books", `{"title":"x"}`)
	if resp.StatusCode != 405 {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Allow"); got != "HEAD, OPTIONS, GET" {
		t.Fatalf("unexpected Allow header %q", got)
	}
	if appErr := decodeError(t, resp); appErr.Code != "METHOD_NOT_ALLOWED" {
		t.Fatalf("expected METHOD_NOT_ALLOWED, got %s", appErr.Code)
	}

	resp = doRequest(t, app, "DELETE", "/api/v1/books/1", "")
	if resp.StatusCode != 405 {
		t.Fatalf("expected 405 for delete, got %d", resp.StatusCode)
	}
}

func TestRouter_Options(t *testing.T) {
	s := newTestStore(t)
	app, _ := newTestApp(t, s, WithCapabilities(Capabilities{Create: true, Read: true, SoftDelete: true}))

	for _, path := range []string{"/api/v1/books", "/api/v1/books/7"} {
		resp := doRequest(t, app, "OPTIONS", path, "")
		if resp.StatusCode != 204 {
			t.Fatalf("%s: expected 204, got %d", path, resp.StatusCode)
		}
		if got := resp.Header.Get("Allow"); got != "HEAD, OPTIONS, POST, GET, DELETE" {
			t.Fatalf("%s: unexpected Allow header %q", path, got)
		}
	}
}

func TestRouter_ListPagination(t *testing.T) {
	s := newTestStore(t)
	app, _ := newTestApp(t, s)
	for _, title := range []string{"a", "b", "c"} {
		resp := doRequest(t, app, "POST", "/api/v1/books", `{"title":"`+title+`"}`)
		if resp.StatusCode != 201 {
			t.Fatalf("create %s: expected 201, got %d", title, resp.StatusCode)
		}
	}

	resp := doRequest(t, app, "GET", "/api/v1/books?Page=2&SIZE=2", "")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	want := map[string]string{
		HeaderPaginationSize:     "2",
		HeaderPaginationTotal:    "3",
		HeaderPaginationPages:    "2",
		HeaderPaginationPrevious: "1",
		HeaderPaginationNext:     "",
	}
	for header, value := range want {
		if got := resp.Header.Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
	var rows []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0]["title"] != "c" {
		t.Fatalf("unexpected page: %v", rows)
	}

	resp = doRequest(t, app, "GET", "/api/v1/books?size=500", "")
	if got := resp.Header.Get(HeaderPaginationSize); got != "50" {
		t.Fatalf("expected size capped at 50, got %q", got)
	}

	for _, query := range []string{"?page=x", "?size=0", "?size=-3", "?size=big"} {
		resp = doRequest(t, app, "GET", "/api/v1/books"+query, "")
		if resp.StatusCode != 400 {
			t.Fatalf("%s: expected 400, got %d", query, resp.StatusCode)
		}
	}
}

func TestRouter_ListSuffix(t *testing.T) {
	s := newTestStore(t)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zerolog.Nop())})
	r := NewRouter(app, RouterOptions{BasePath: "/api", Version: 1})
	base := r.Mount("shelf", newBookController(t, s), WithListSuffix("all"), WithVersion(0))
	if base != "/api/shelf" {
		t.Fatalf("unexpected base %q", base)
	}

	resp := doRequest(t, app, "POST", "/api/shelf", `{"title":"x"}`)
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp = doRequest(t, app, "GET", "/api/shelf/all", "")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var rows []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}

	resp = doRequest(t, app, "GET", "/api/shelf/1", "")
	if resp.StatusCode != 200 {
		t.Fatalf("expected item route to still match, got %d", resp.StatusCode)
	}
}

func TestErrorHandler_OpaqueInternalErrors(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zerolog.New(&buf))})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("pq: password authentication failed for user admin")
	})

	resp := doRequest(t, app, "GET", "/boom", "")
	if resp.StatusCode != 500 {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	appErr := decodeError(t, resp)
	if appErr.Code != "INTERNAL_ERROR" || strings.Contains(appErr.Message, "password") {
		t.Fatalf("internal detail leaked: %+v", appErr)
	}
	if !strings.Contains(buf.String(), "password authentication failed") {
		t.Fatalf("expected the cause to be logged, got %s", buf.String())
	}

	resp = doRequest(t, app, "GET", "/missing", "")
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if appErr := decodeError(t, resp); appErr.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %s", appErr.Code)
	}
}
