// Package moysklad is a typed client for the upstream inventory ERP's
// JSON-over-HTTPS API. It enforces a process-wide request budget, retries
// transient failures with exponential backoff and walks paged collections.
package moysklad

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// pageLimit is the maximum rows per page the listing endpoints allow.
	pageLimit = 1000

	defaultTimeout    = 30 * time.Second
	defaultRetryCount = 3
	defaultRPS        = 5

	retryWaitMin = 1 * time.Second
	retryWaitMax = 30 * time.Second
)

// Observer is notified after every request; used to feed metrics without
// coupling this package to the monitoring stack.
type Observer func(op string, status int, err error)

// Config holds client settings.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration // per-call hard timeout; default 30s
	RetryCount int           // retries after the first attempt; default 3
	RPS        float64       // global request budget; default 5
	Debug      bool
	Observer   Observer
}

// Client is the ERP API client. All methods are safe for concurrent use;
// the rate limiter is shared across callers.
type Client struct {
	http    *resty.Client
	baseURL string
	limiter *rate.Limiter
	observe Observer
	debug   bool
}

// NewClient constructs a Client with sane defaults applied.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = defaultRetryCount
	}
	if cfg.RPS <= 0 {
		cfg.RPS = defaultRPS
	}

	c := &Client{
		baseURL: cfg.BaseURL,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), 1),
		observe: cfg.Observer,
		debug:   cfg.Debug,
	}

	c.http = resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.Token).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json;charset=utf-8").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(retryWaitMin).
		SetRetryMaxWaitTime(retryWaitMax).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500 || r.StatusCode() == http.StatusTooManyRequests
		}).
		SetRetryAfter(func(_ *resty.Client, r *resty.Response) (time.Duration, error) {
			// Honor Retry-After on 429; zero falls back to the backoff.
			if r != nil && r.StatusCode() == http.StatusTooManyRequests {
				if s := r.Header().Get("Retry-After"); s != "" {
					if secs, convErr := strconv.Atoi(s); convErr == nil && secs > 0 {
						return time.Duration(secs) * time.Second, nil
					}
				}
			}
			return 0, nil
		}).
		OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			// Every attempt consumes a slot from the shared budget.
			return c.limiter.Wait(req.Context())
		})

	return c
}

// get performs a GET, decodes a 2xx body into out and maps failures to the
// client error taxonomy.
func (c *Client) get(ctx context.Context, op, path string, query map[string]string, out any) error {
	req := c.http.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if out != nil {
		// Decode regardless of the Content-Type the server (or a proxy in
		// front of it) put on the response; a 2xx body that is not valid
		// JSON must surface as an error, not as an empty result.
		req.SetResult(out).ForceContentType("application/json")
	}

	if c.debug {
		log.Debug().Str("op", op).Str("path", path).Msg("[ERP] request")
	}

	resp, err := req.Get(path)
	if err != nil {
		if resp != nil && resp.StatusCode() >= 200 && resp.StatusCode() < 300 {
			apiErr := &Error{
				Kind:    KindProtocol,
				Op:      op,
				Status:  resp.StatusCode(),
				Message: err.Error(),
				Err:     err,
			}
			c.report(op, resp.StatusCode(), apiErr)
			return apiErr
		}
		c.report(op, 0, err)
		return &Error{Kind: KindTransport, Op: op, Message: err.Error(), Err: err}
	}
	if resp.IsError() {
		apiErr := &Error{
			Kind:    kindForStatus(resp.StatusCode()),
			Op:      op,
			Status:  resp.StatusCode(),
			Message: truncate(resp.String(), 200),
		}
		c.report(op, resp.StatusCode(), apiErr)
		return apiErr
	}

	c.report(op, resp.StatusCode(), nil)
	return nil
}

func (c *Client) report(op string, status int, err error) {
	if c.observe != nil {
		c.observe(op, status, err)
	}
}

// listAll walks a paged collection until a short page comes back.
func listAll[T any](ctx context.Context, c *Client, op, path string, query map[string]string) ([]T, error) {
	var all []T
	offset := 0
	for {
		q := make(map[string]string, len(query)+2)
		for k, v := range query {
			q[k] = v
		}
		q["limit"] = strconv.Itoa(pageLimit)
		q["offset"] = strconv.Itoa(offset)

		var page listResponse[T]
		if err := c.get(ctx, op, path, q, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Rows...)
		if len(page.Rows) < pageLimit {
			return all, nil
		}
		offset += pageLimit
	}
}

// TestConnection performs a cheap whoami call; it succeeds iff the token is
// accepted.
func (c *Client) TestConnection(ctx context.Context) error {
	return c.get(ctx, "test_connection", "/context/employee", nil, nil)
}

// ListWarehouses returns every warehouse, archived ones included.
func (c *Client) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	return listAll[Warehouse](ctx, c, "list_warehouses", "/entity/store", nil)
}

// ListProductGroups returns the full product folder tree.
func (c *Client) ListProductGroups(ctx context.Context) ([]ProductGroup, error) {
	return listAll[ProductGroup](ctx, c, "list_product_groups", "/entity/productfolder", nil)
}

// StockReport returns the stock snapshot of one warehouse. With includeZero
// the report also carries rows whose stock is zero.
func (c *Client) StockReport(ctx context.Context, warehouseID string, includeZero bool) ([]StockRow, error) {
	mode := "positiveOnly"
	if includeZero {
		mode = "all"
	}
	query := map[string]string{
		"filter":    "store=" + c.storeHref(warehouseID),
		"stockMode": mode,
	}
	rows, err := listAll[StockRow](ctx, c, "stock_report", "/report/stock/all", query)
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		if row.Meta.Href == "" {
			return nil, &Error{
				Kind:    KindProtocol,
				Op:      "stock_report",
				Message: fmt.Sprintf("row %d has no meta.href", i),
			}
		}
	}
	return rows, nil
}

// TurnoverReport returns per-product income/outcome for one warehouse over
// the given window.
func (c *Client) TurnoverReport(ctx context.Context, warehouseID string, from, to time.Time) ([]TurnoverRow, error) {
	query := map[string]string{
		"momentFrom": from.Format(momentLayout),
		"momentTo":   to.Format(momentLayout),
		"filter":     "store=" + c.storeHref(warehouseID),
	}
	return listAll[TurnoverRow](ctx, c, "turnover_report", "/report/turnover/bystore", query)
}

// ListProducts returns product rows matching the filter.
func (c *Client) ListProducts(ctx context.Context, filter Filter) ([]ProductRow, error) {
	var query map[string]string
	if encoded := filter.Encode(); encoded != "" {
		query = map[string]string{"filter": encoded}
	}
	return listAll[ProductRow](ctx, c, "list_products", "/entity/product", query)
}

// ProductImages returns the image metadata of one product. The first row is
// the main image.
func (c *Client) ProductImages(ctx context.Context, productID string) ([]Image, error) {
	path := "/entity/product/" + productID + "/images"
	return listAll[Image](ctx, c, "product_images", path, nil)
}

// DownloadImage fetches an image binary by its absolute download href.
func (c *Client) DownloadImage(ctx context.Context, href string) ([]byte, error) {
	req := c.http.R().SetContext(ctx)
	resp, err := req.Get(href)
	if err != nil {
		c.report("download_image", 0, err)
		return nil, &Error{Kind: KindTransport, Op: "download_image", Message: err.Error(), Err: err}
	}
	if resp.IsError() {
		apiErr := &Error{
			Kind:   kindForStatus(resp.StatusCode()),
			Op:     "download_image",
			Status: resp.StatusCode(),
		}
		c.report("download_image", resp.StatusCode(), apiErr)
		return nil, apiErr
	}
	c.report("download_image", resp.StatusCode(), nil)
	return resp.Body(), nil
}

// storeHref builds the entity href the report filters expect.
func (c *Client) storeHref(warehouseID string) string {
	return c.baseURL + "/entity/store/" + warehouseID
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
