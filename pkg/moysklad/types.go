package moysklad

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// momentLayout is the date format the API expects and returns.
const momentLayout = "2006-01-02 15:04:05"

// Meta is the envelope the API attaches to every entity reference.
type Meta struct {
	Href         string `json:"href"`
	Type         string `json:"type"`
	DownloadHref string `json:"downloadHref,omitempty"`
	Size         int    `json:"size,omitempty"`
}

// ID extracts the entity id from the href tail. Stock report rows carry an
// id field of their own, but it is known to diverge from the href form;
// only the href tail matches across endpoints.
func (m Meta) ID() string {
	href := m.Href
	if i := strings.IndexByte(href, '?'); i >= 0 {
		href = href[:i]
	}
	href = strings.TrimRight(href, "/")
	if i := strings.LastIndexByte(href, '/'); i >= 0 {
		return href[i+1:]
	}
	return href
}

// listResponse is the generic paged collection envelope.
type listResponse[T any] struct {
	Meta Meta `json:"meta"`
	Rows []T  `json:"rows"`
}

// Warehouse is a row of entity/store.
type Warehouse struct {
	Meta     Meta   `json:"meta"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	Archived bool   `json:"archived"`
}

// FolderRef is a back-reference to a product folder.
type FolderRef struct {
	Meta Meta `json:"meta"`
}

// ProductGroup is a row of entity/productfolder.
type ProductGroup struct {
	Meta     Meta       `json:"meta"`
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	PathName string     `json:"pathName"`
	Parent   *FolderRef `json:"productFolder,omitempty"`
}

// ParentID returns the id of the parent folder, or "" at the root.
func (g ProductGroup) ParentID() string {
	if g.Parent == nil {
		return ""
	}
	return g.Parent.Meta.ID()
}

// StockFolder is the folder reference embedded in a stock report row.
type StockFolder struct {
	Meta     Meta   `json:"meta"`
	Name     string `json:"name"`
	PathName string `json:"pathName"`
}

// StockRow is a row of report/stock/all.
type StockRow struct {
	Meta      Meta            `json:"meta"`
	Article   string          `json:"article"`
	Name      string          `json:"name"`
	Stock     decimal.Decimal `json:"stock"`
	Reserve   decimal.Decimal `json:"reserve"`
	InTransit decimal.Decimal `json:"inTransit"`
	Archived  bool            `json:"archived"`
	Folder    *StockFolder    `json:"folder,omitempty"`
}

// UpstreamID returns the product id parsed from the row's meta href.
func (r StockRow) UpstreamID() string { return r.Meta.ID() }

// IsProduct reports whether the row describes a product (services and
// bundles share the report).
func (r StockRow) IsProduct() bool { return r.Meta.Type == "product" }

// GroupID returns the folder id of the row, or "" when ungrouped.
func (r StockRow) GroupID() string {
	if r.Folder == nil {
		return ""
	}
	return r.Folder.Meta.ID()
}

// TurnoverSide is one direction of a turnover row.
type TurnoverSide struct {
	Quantity decimal.Decimal `json:"quantity"`
	Sum      decimal.Decimal `json:"sum"`
}

// TurnoverAssortment identifies the product of a turnover row.
type TurnoverAssortment struct {
	Meta    Meta   `json:"meta"`
	Name    string `json:"name"`
	Article string `json:"article"`
}

// TurnoverRow is a row of report/turnover/bystore.
type TurnoverRow struct {
	Assortment TurnoverAssortment `json:"assortment"`
	Income     TurnoverSide       `json:"income"`
	Outcome    TurnoverSide       `json:"outcome"`
}

// ProductRow is a row of entity/product.
type ProductRow struct {
	Meta        Meta       `json:"meta"`
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Article     string     `json:"article"`
	Description string     `json:"description"`
	PathName    string     `json:"pathName"`
	Color       string     `json:"color"`
	Archived    bool       `json:"archived"`
	Folder      *FolderRef `json:"productFolder,omitempty"`
}

// Image is an image subresource of a product. The first image in the list is
// the product's main image.
type Image struct {
	Meta      Meta   `json:"meta"`
	Title     string `json:"title"`
	Filename  string `json:"filename"`
	Miniature *Meta  `json:"miniature,omitempty"`
}

// DownloadHref returns the URL of the full-size binary.
func (i Image) DownloadHref() string { return i.Meta.DownloadHref }

// MiniatureHref returns the URL of the thumbnail binary, or "".
func (i Image) MiniatureHref() string {
	if i.Miniature == nil {
		return ""
	}
	return i.Miniature.DownloadHref
}

// Filter is a set of key=value conditions joined with ';' per the API's
// filter syntax.
type Filter map[string]string

// Encode renders the filter in deterministic key order.
func (f Filter) Encode() string {
	if len(f) == 0 {
		return ""
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	// sorted for stable request URLs
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+f[k])
	}
	return strings.Join(parts, ";")
}
