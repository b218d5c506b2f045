package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/magangradar/platform/pkg/common/logger"
)

const (
	maxBackoff     = 30 * time.Second
	maxJitter      = time.Second
	maxUnwrapDepth = 3
)

// Pagination carries whatever page metadata the upstream happened to
// include. Any field may be absent.
type Pagination struct {
	CurrentPage *int
	LastPage    *int
	TotalPages  *int
	TotalItems  *int
}

// LastPageHint returns the strongest "final page" signal available.
func (p Pagination) LastPageHint() *int {
	if p.LastPage != nil {
		return p.LastPage
	}
	return p.TotalPages
}

// Page is one fetched slice of the upstream listing.
type Page struct {
	Items      []map[string]interface{}
	Pagination Pagination
}

// RetryExhaustedError is returned when every allowed attempt against the
// upstream failed with a transient error.
type RetryExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.status, e.body)
}

// Client fetches paginated listings from the MagangHub API, retrying
// transient failures with jittered exponential backoff.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
}

func NewClient(baseURL string, timeout time.Duration, maxRetries int, baseDelay time.Duration) *Client {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

func (c *Client) FetchVacancies(ctx context.Context, page, limit int) (*Page, error) {
	params := url.Values{}
	params.Set("order_direction", "DESC")
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(limit))
	return c.fetchPage(ctx, "/list/vacancies-aktif", params)
}

func (c *Client) FetchProvinces(ctx context.Context) (*Page, error) {
	params := url.Values{}
	params.Set("order_by", "nama_propinsi")
	params.Set("order_direction", "ASC")
	params.Set("page", "1")
	params.Set("limit", "40")
	return c.fetchPage(ctx, "/list/provinces", params)
}

// fetchPage performs one paginated GET. Transient failures (no response,
// 5xx, 429, 408) are retried up to maxRetries attempts; other 4xx abort
// immediately.
func (c *Client) fetchPage(ctx context.Context, path string, params url.Values) (*Page, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		page, err := c.doFetch(ctx, path, params)
		if err == nil {
			return page, nil
		}
		lastErr = err

		if se, ok := err.(*statusError); ok && !retryableStatus(se.status) {
			return nil, fmt.Errorf("GET %s: %w", path, err)
		}

		if attempt < c.maxRetries {
			delay := c.backoff(attempt)
			logger.WithFields(map[string]interface{}{
				"path":    path,
				"attempt": attempt,
				"delay":   delay.String(),
			}).Warn("Upstream fetch failed, retrying")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, &RetryExhaustedError{Op: "GET " + path, Attempts: c.maxRetries, Err: lastErr}
}

func (c *Client) doFetch(ctx context.Context, path string, params url.Values) (*Page, error) {
	reqURL := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &statusError{status: resp.StatusCode, body: snippet}
	}

	var payload interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}

	return &Page{
		Items:      extractItems(payload),
		Pagination: extractPagination(payload),
	}, nil
}

func retryableStatus(status int) bool {
	return status >= 500 ||
		status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout
}

// backoff is baseDelay * 2^(attempt-1) plus up to one second of jitter,
// capped at 30s.
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.baseDelay << uint(attempt-1)
	delay += time.Duration(rand.Int63n(int64(maxJitter)))
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

// The upstream wraps its item array differently between deployments. Each
// shape matcher is tried in order; the first success wins.
type itemShape func(interface{}, int) ([]map[string]interface{}, bool)

var itemShapes []itemShape

func init() {
	itemShapes = []itemShape{
		matchTopLevelArray,
		matchWrapped("data"),
		matchWrapped("results"),
		matchItemsKey,
	}
}

func extractItems(payload interface{}) []map[string]interface{} {
	if items, ok := resolveItems(payload, maxUnwrapDepth); ok {
		return items
	}
	return nil
}

func resolveItems(payload interface{}, depth int) ([]map[string]interface{}, bool) {
	if payload == nil || depth <= 0 {
		return nil, false
	}
	for _, shape := range itemShapes {
		if items, ok := shape(payload, depth); ok {
			return items, true
		}
	}
	return nil, false
}

func matchTopLevelArray(payload interface{}, _ int) ([]map[string]interface{}, bool) {
	arr, ok := payload.([]interface{})
	if !ok {
		return nil, false
	}
	return toObjects(arr), true
}

func matchWrapped(key string) itemShape {
	return func(payload interface{}, depth int) ([]map[string]interface{}, bool) {
		obj, ok := payload.(map[string]interface{})
		if !ok {
			return nil, false
		}
		nested, ok := obj[key]
		if !ok || nested == nil {
			return nil, false
		}
		return resolveItems(nested, depth-1)
	}
}

func matchItemsKey(payload interface{}, _ int) ([]map[string]interface{}, bool) {
	obj, ok := payload.(map[string]interface{})
	if !ok {
		return nil, false
	}
	arr, ok := obj["items"].([]interface{})
	if !ok {
		return nil, false
	}
	return toObjects(arr), true
}

func toObjects(arr []interface{}) []map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(arr))
	for _, entry := range arr {
		if obj, ok := entry.(map[string]interface{}); ok {
			items = append(items, obj)
		}
	}
	return items
}

func extractPagination(payload interface{}) Pagination {
	obj, ok := payload.(map[string]interface{})
	if !ok {
		return Pagination{}
	}
	if meta, ok := obj["pagination"].(map[string]interface{}); ok {
		return parsePagination(meta)
	}
	if meta, ok := obj["meta"].(map[string]interface{}); ok {
		if nested, ok := meta["pagination"].(map[string]interface{}); ok {
			return parsePagination(nested)
		}
	}
	if nested, ok := obj["data"]; ok && nested != nil {
		return extractPagination(nested)
	}
	return Pagination{}
}

func parsePagination(meta map[string]interface{}) Pagination {
	return Pagination{
		CurrentPage: intFromAny(meta["current_page"]),
		LastPage:    intFromAny(meta["last_page"]),
		TotalPages:  firstIntFromAny(meta["total_pages"], meta["total_page"]),
		TotalItems:  firstIntFromAny(meta["total_items"], meta["total_data"]),
	}
}

func firstIntFromAny(values ...interface{}) *int {
	for _, v := range values {
		if n := intFromAny(v); n != nil {
			return n
		}
	}
	return nil
}

func intFromAny(v interface{}) *int {
	switch val := v.(type) {
	case float64:
		n := int(val)
		return &n
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return &n
		}
	}
	return nil
}
