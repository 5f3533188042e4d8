// Package httpapi is the HTTP/JSON client for the remote meal backend.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mealtrack/internal/core"
	applog "mealtrack/internal/log"
	"mealtrack/internal/middleware/trace"
	"mealtrack/internal/remote"
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 4 << 20

// Client talks to the meal backend.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

var _ remote.Backend = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its transport is used
// as is; no tracing is added.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for degraded responses.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the backend at baseURL. Outbound requests carry
// the caller's request ID. A non-positive timeout leaves requests unbounded.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: trace.NewTransport(nil),
			Timeout:   timeout,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) url(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func userQuery(userID int64) url.Values {
	if userID == 0 {
		return nil
	}
	return url.Values{"user_id": {strconv.FormatInt(userID, 10)}}
}

// send executes req and returns the body of a 2xx response.
func (c *Client) send(req *http.Request) ([]byte, error) {
	op := req.Method + " " + req.URL.Path
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &remote.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &remote.TransportError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, body)
	}
	return body, nil
}

// statusError extracts a FastAPI {"detail": ...} or envelope message from a
// failed response.
func statusError(code int, body []byte) *remote.StatusError {
	se := &remote.StatusError{Code: code}
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return se
	}
	if len(payload.Detail) > 0 && string(payload.Detail) != "null" {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil {
			se.Detail = s
		} else {
			se.Detail = string(payload.Detail)
		}
		return se
	}
	se.Detail = payload.Message
	return se
}

// call sends a JSON request and decodes the envelope's data into out.
// A body that does not decode leaves out untouched and reports ok=false;
// callers substitute a safe default.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, in, out any) (ok bool, err error) {
	var rdr io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return false, fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path, query), rdr)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	body, err := c.send(req)
	if err != nil {
		return false, err
	}
	return c.decodeEnvelope(ctx, method+" "+path, body, out)
}

func (c *Client) decodeEnvelope(ctx context.Context, op string, body []byte, out any) (bool, error) {
	var env remote.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.logger.WarnContext(ctx, "Malformed backend response",
			applog.FieldOperation, op, applog.FieldError, err)
		return false, nil
	}
	if env.Rejected() {
		msg := strings.TrimSpace(env.Message)
		if msg == "" {
			return false, remote.ErrRejected
		}
		return false, fmt.Errorf("%w: %s", remote.ErrRejected, msg)
	}
	if out == nil {
		return true, nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		c.logger.WarnContext(ctx, "Malformed backend data",
			applog.FieldOperation, op, applog.FieldError, err)
		return false, nil
	}
	return true, nil
}

// ListMeals returns the meals filed under date. A response without a meal
// list yields an empty slice.
func (c *Client) ListMeals(ctx context.Context, date string, userID int64) ([]remote.WireMeal, error) {
	var data remote.MealsByDate
	if _, err := c.call(ctx, http.MethodGet, "/meals/"+url.PathEscape(date), userQuery(userID), nil, &data); err != nil {
		return nil, fmt.Errorf("list meals for %s: %w", date, err)
	}
	if data.Meals == nil {
		return []remote.WireMeal{}, nil
	}
	return data.Meals, nil
}

func (c *Client) GetMeal(ctx context.Context, id int64) (remote.WireMeal, error) {
	var m remote.WireMeal
	ok, err := c.call(ctx, http.MethodGet, "/meals/detail/"+strconv.FormatInt(id, 10), nil, nil, &m)
	if err != nil {
		return remote.WireMeal{}, fmt.Errorf("get meal %d: %w", id, err)
	}
	if !ok || m.ID == 0 {
		return remote.WireMeal{}, fmt.Errorf("get meal %d: %w", id, remote.ErrMalformed)
	}
	return m, nil
}

// CreateMeal stores a new meal. The created record must carry its id, since
// the caller files it locally by that id.
func (c *Client) CreateMeal(ctx context.Context, userID int64, req remote.CreateMealRequest) (remote.WireMeal, error) {
	var m remote.WireMeal
	ok, err := c.call(ctx, http.MethodPost, "/meals", userQuery(userID), req, &m)
	if err != nil {
		return remote.WireMeal{}, fmt.Errorf("create meal: %w", err)
	}
	if !ok || m.ID == 0 {
		return remote.WireMeal{}, fmt.Errorf("create meal: %w", remote.ErrMalformed)
	}
	return m, nil
}

// UpdateMeal replaces the meal's name and nutrients. The returned record is
// best effort: a response without data yields a zero WireMeal.
func (c *Client) UpdateMeal(ctx context.Context, id int64, req remote.UpdateMealRequest) (remote.WireMeal, error) {
	var m remote.WireMeal
	if _, err := c.call(ctx, http.MethodPut, "/meals/"+strconv.FormatInt(id, 10), nil, req, &m); err != nil {
		return remote.WireMeal{}, fmt.Errorf("update meal %d: %w", id, err)
	}
	return m, nil
}

func (c *Client) DeleteMeal(ctx context.Context, id int64) error {
	if _, err := c.call(ctx, http.MethodDelete, "/meals/"+strconv.FormatInt(id, 10), nil, nil, nil); err != nil {
		return fmt.Errorf("delete meal %d: %w", id, err)
	}
	return nil
}

// MealSummary returns the backend's aggregate for date; an empty response
// yields a zero summary for that date.
func (c *Client) MealSummary(ctx context.Context, date string, userID int64) (core.DaySummary, error) {
	var w remote.WireSummary
	if _, err := c.call(ctx, http.MethodGet, "/meals/summary/"+url.PathEscape(date), userQuery(userID), nil, &w); err != nil {
		return core.DaySummary{}, fmt.Errorf("meal summary for %s: %w", date, err)
	}
	s := remote.ToSummary(w)
	if s.Date == "" {
		s.Date = date
	}
	return s, nil
}

func (c *Client) CompareNutrition(ctx context.Context, userID int64, date string) (core.Comparison, error) {
	var w remote.WireComparison
	path := "/nutrition/compare/" + strconv.FormatInt(userID, 10) + "/" + url.PathEscape(date)
	if _, err := c.call(ctx, http.MethodGet, path, nil, nil, &w); err != nil {
		return core.Comparison{}, fmt.Errorf("compare nutrition for %s: %w", date, err)
	}
	cmp := remote.ToComparison(w)
	if cmp.Date == "" {
		cmp.Date = date
	}
	return cmp, nil
}

func (c *Client) AverageNutrition(ctx context.Context, ageGroup string) ([]core.AverageNutrient, error) {
	var w remote.WireAverages
	if _, err := c.call(ctx, http.MethodGet, "/nutrition/average/"+url.PathEscape(ageGroup), nil, nil, &w); err != nil {
		return nil, fmt.Errorf("average nutrition for %s: %w", ageGroup, err)
	}
	if w.NutritionData == nil {
		return []core.AverageNutrient{}, nil
	}
	return w.NutritionData, nil
}

// ScanLabel uploads image as multipart field "file". The OCR endpoint answers
// without an envelope.
func (c *Client) ScanLabel(ctx context.Context, image io.Reader, filename string) (core.LabelScan, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return core.LabelScan{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return core.LabelScan{}, fmt.Errorf("read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return core.LabelScan{}, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/ocr/upload", nil), &buf)
	if err != nil {
		return core.LabelScan{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	body, err := c.send(req)
	if err != nil {
		return core.LabelScan{}, fmt.Errorf("scan label: %w", err)
	}

	var w remote.WireLabelScan
	if err := json.Unmarshal(body, &w); err != nil {
		return core.LabelScan{}, fmt.Errorf("scan label: %w", remote.ErrMalformed)
	}
	scan, err := remote.ToLabelScan(w)
	if err != nil {
		return core.LabelScan{}, fmt.Errorf("scan label: %w", err)
	}
	return scan, nil
}
