package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodplan/prodplan_api/internal/models"
	"github.com/prodplan/prodplan_api/pkg/moysklad"
)

type fakeImageERP struct {
	images    map[string][]moysklad.Image
	imagesErr map[string]error
	binaries  map[string][]byte
}

func (f *fakeImageERP) ProductImages(_ context.Context, productID string) ([]moysklad.Image, error) {
	if err := f.imagesErr[productID]; err != nil {
		return nil, err
	}
	return f.images[productID], nil
}

func (f *fakeImageERP) DownloadImage(_ context.Context, href string) ([]byte, error) {
	data, ok := f.binaries[href]
	if !ok {
		return nil, errors.New("image not found")
	}
	return data, nil
}

type fakeImageProducts struct {
	stale   []models.Product
	stamped []int
}

func (f *fakeImageProducts) ListImageStale(time.Time, time.Duration) ([]models.Product, error) {
	return f.stale, nil
}

func (f *fakeImageProducts) SetImageSynced(productID int) error {
	f.stamped = append(f.stamped, productID)
	return nil
}

type fakeImageStore struct {
	replaced map[int][]models.ProductImage
}

func (f *fakeImageStore) ReplaceForProduct(productID int, images []models.ProductImage) error {
	if f.replaced == nil {
		f.replaced = map[int][]models.ProductImage{}
	}
	f.replaced[productID] = images
	return nil
}

func upstreamImage(href, thumb string) moysklad.Image {
	img := moysklad.Image{Meta: moysklad.Meta{DownloadHref: href}}
	if thumb != "" {
		img.Miniature = &moysklad.Meta{DownloadHref: thumb}
	}
	return img
}

func TestMirrorSinceReplacesImageSets(t *testing.T) {
	erp := &fakeImageERP{
		images: map[string][]moysklad.Image{
			"u1": {
				upstreamImage("https://x/img/main", "https://x/img/main-mini"),
				upstreamImage("https://x/img/second", ""),
			},
		},
		binaries: map[string][]byte{
			"https://x/img/main":      []byte("main-bytes"),
			"https://x/img/main-mini": []byte("mini-bytes"),
			"https://x/img/second":    []byte("second-bytes"),
		},
	}
	products := &fakeImageProducts{stale: []models.Product{{ID: 7, UpstreamID: "u1"}}}
	store := &fakeImageStore{}
	svc := NewImageService(erp, products, store, time.Hour)

	err := svc.MirrorSince(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)

	imgs := store.replaced[7]
	require.Len(t, imgs, 2)
	assert.True(t, imgs[0].IsMain, "first upstream image is the main image")
	assert.False(t, imgs[1].IsMain)
	assert.Equal(t, []byte("main-bytes"), imgs[0].Data)
	assert.Equal(t, []byte("mini-bytes"), imgs[0].Thumbnail)
	assert.Nil(t, imgs[1].Thumbnail)

	assert.Equal(t, []int{7}, products.stamped)
}

func TestMirrorSinceSkipsFailedProducts(t *testing.T) {
	erp := &fakeImageERP{
		images: map[string][]moysklad.Image{
			"good": {upstreamImage("https://x/img/a", "")},
		},
		imagesErr: map[string]error{"bad": errors.New("listing failed")},
		binaries:  map[string][]byte{"https://x/img/a": []byte("a")},
	}
	products := &fakeImageProducts{stale: []models.Product{
		{ID: 1, UpstreamID: "bad"},
		{ID: 2, UpstreamID: "good"},
	}}
	store := &fakeImageStore{}
	svc := NewImageService(erp, products, store, time.Hour)

	err := svc.MirrorSince(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err, "per-product failures never fail the walk")

	_, badStored := store.replaced[1]
	assert.False(t, badStored)
	require.Contains(t, store.replaced, 2)
	assert.Equal(t, []int{2}, products.stamped, "failed products stay stale for retry")
}

func TestMirrorSinceStopsOnCancel(t *testing.T) {
	products := &fakeImageProducts{stale: []models.Product{{ID: 1, UpstreamID: "u1"}}}
	svc := NewImageService(&fakeImageERP{}, products, &fakeImageStore{}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.MirrorSince(ctx, time.Now())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, products.stamped)
}
