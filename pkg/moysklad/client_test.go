package moysklad

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler, cfg Config) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL
	if cfg.Token == "" {
		cfg.Token = "test-token"
	}
	if cfg.RPS == 0 {
		cfg.RPS = 1000 // effectively unlimited unless a test cares
	}
	return NewClient(cfg), srv
}

func writePage(w http.ResponseWriter, rows []any) {
	w.Header().Set("Content-Type", "application/json;charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"meta": map[string]any{"size": len(rows)},
		"rows": rows,
	})
}

func TestMetaID(t *testing.T) {
	cases := map[string]string{
		"https://api.example.com/entity/product/abc-123": "abc-123",
		"https://api.example.com/entity/product/abc-123?expand=images": "abc-123",
		"https://api.example.com/entity/product/abc-123/":               "abc-123",
		"": "",
	}
	for href, want := range cases {
		assert.Equal(t, want, Meta{Href: href}.ID(), "href %q", href)
	}
}

func TestFilterEncode(t *testing.T) {
	assert.Equal(t, "", Filter{}.Encode())
	assert.Equal(t, "archived=false;pathName=Parts", Filter{
		"pathName": "Parts",
		"archived": "false",
	}.Encode())
}

func TestListWarehouses_Paging(t *testing.T) {
	var offsets []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offsets = append(offsets, r.URL.Query().Get("offset"))
		count := pageLimit
		if r.URL.Query().Get("offset") != "0" {
			count = 3
		}
		rows := make([]any, count)
		for i := range rows {
			rows[i] = map[string]any{
				"meta": map[string]any{"href": fmt.Sprintf("%s/entity/store/wh-%d", r.Host, i)},
				"id":   fmt.Sprintf("wh-%d", i),
				"name": fmt.Sprintf("Warehouse %d", i),
			}
		}
		writePage(w, rows)
	})
	client, _ := newTestClient(t, handler, Config{})

	warehouses, err := client.ListWarehouses(context.Background())
	require.NoError(t, err)
	assert.Len(t, warehouses, pageLimit+3)
	assert.Equal(t, []string{"0", "1000"}, offsets)
}

func TestStockReport_ParsesUpstreamIDFromHref(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Contains(t, r.URL.Query().Get("filter"), "/entity/store/wh-1")
		assert.Equal(t, "all", r.URL.Query().Get("stockMode"))
		writePage(w, []any{map[string]any{
			// the sibling id field diverges from the href on purpose
			"meta":    map[string]any{"href": "https://x/entity/product/real-id-1", "type": "product"},
			"id":      "bogus-id",
			"article": "496-51850",
			"name":    "Bracket",
			"stock":   12.5,
			"reserve": 2,
		}})
	})
	client, _ := newTestClient(t, handler, Config{})

	rows, err := client.StockReport(context.Background(), "wh-1", true)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "real-id-1", rows[0].UpstreamID())
	assert.True(t, rows[0].IsProduct())
	assert.Equal(t, "496-51850", rows[0].Article)
	assert.Equal(t, "12.5", rows[0].Stock.String())
}

func TestStockReport_MissingHrefIsProtocolError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writePage(w, []any{map[string]any{"article": "A-1", "stock": 1}})
	})
	client, _ := newTestClient(t, handler, Config{})

	_, err := client.StockReport(context.Background(), "wh-1", true)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindProtocol), "got %v", err)
}

func TestTurnoverReport_Window(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`, r.URL.Query().Get("momentFrom"))
		assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`, r.URL.Query().Get("momentTo"))
		writePage(w, []any{map[string]any{
			"assortment": map[string]any{
				"meta":    map[string]any{"href": "https://x/entity/product/p1"},
				"article": "A-1",
			},
			"outcome": map[string]any{"quantity": 42},
			"income":  map[string]any{"quantity": 7},
		}})
	})
	client, _ := newTestClient(t, handler, Config{})

	to := time.Now()
	rows, err := client.TurnoverReport(context.Background(), "wh-1", to.AddDate(0, 0, -60), to)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "42", rows[0].Outcome.Quantity.String())
	assert.Equal(t, "p1", rows[0].Assortment.Meta.ID())
}

func TestRetry_On5xxThenSuccess(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writePage(w, []any{})
	})
	client, _ := newTestClient(t, handler, Config{RetryCount: 3})

	_, err := client.ListProductGroups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRetry_HonorsRetryAfter(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writePage(w, []any{})
	})
	client, _ := newTestClient(t, handler, Config{RetryCount: 2})

	start := time.Now()
	_, err := client.ListProductGroups(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestAuthFailure_NotRetried(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	client, _ := newTestClient(t, handler, Config{RetryCount: 3})

	err := client.TestConnection(context.Background())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuth), "got %v", err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNotFound(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	client, _ := newTestClient(t, handler, Config{})

	_, err := client.ProductImages(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNotFound), "got %v", err)
	assert.False(t, Retryable(err))
}

func TestNonJSONSuccessBodyIsError(t *testing.T) {
	// A proxy answering 200 with an HTML placeholder must surface as an
	// error, never decode as an empty catalog.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	})
	client, _ := newTestClient(t, handler, Config{RetryCount: 1})

	_, err := client.ListWarehouses(context.Background())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindProtocol), "got %v", err)
}

func TestMissingContentTypeStillDecodes(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// no Content-Type header on purpose
		_, _ = fmt.Fprint(w, `{"rows":[{"meta":{"href":"https://x/entity/store/wh-1"},"name":"Main"}]}`)
	})
	client, _ := newTestClient(t, handler, Config{})

	warehouses, err := client.ListWarehouses(context.Background())
	require.NoError(t, err)
	require.Len(t, warehouses, 1)
	assert.Equal(t, "Main", warehouses[0].Name)
}

func TestRateLimiter_SharedAcrossCallers(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writePage(w, []any{})
	})
	client, _ := newTestClient(t, handler, Config{RPS: 10})

	const requests = 8
	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.ListWarehouses(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// 8 requests at 10 rps with burst 1 need at least ~700ms.
	assert.GreaterOrEqual(t, time.Since(start), 600*time.Millisecond)
}

func TestObserver(t *testing.T) {
	var mu sync.Mutex
	var ops []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writePage(w, []any{})
	})
	client, _ := newTestClient(t, handler, Config{
		Observer: func(op string, status int, err error) {
			mu.Lock()
			ops = append(ops, fmt.Sprintf("%s:%d:%v", op, status, err == nil))
			mu.Unlock()
		},
	})

	_, err := client.ListWarehouses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"list_warehouses:200:true"}, ops)
}

func TestDownloadImage(t *testing.T) {
	img := []byte{0x89, 'P', 'N', 'G'}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(img)
	})
	client, srv := newTestClient(t, handler, Config{})

	data, err := client.DownloadImage(context.Background(), srv.URL+"/download/abc")
	require.NoError(t, err)
	assert.Equal(t, img, data)
}
