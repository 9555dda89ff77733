package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/prodplan/prodplan_api/internal/models"
	"github.com/prodplan/prodplan_api/pkg/moysklad"
)

// imageERP is the slice of the upstream API image mirroring needs.
type imageERP interface {
	ProductImages(ctx context.Context, productID string) ([]moysklad.Image, error)
	DownloadImage(ctx context.Context, href string) ([]byte, error)
}

// imageProductStore selects products with stale image mirrors.
type imageProductStore interface {
	ListImageStale(syncedSince time.Time, ttl time.Duration) ([]models.Product, error)
	SetImageSynced(productID int) error
}

// imageStore persists mirrored image sets.
type imageStore interface {
	ReplaceForProduct(productID int, images []models.ProductImage) error
}

// ImageService mirrors upstream product images into the local database.
// Mirroring is best effort: a product whose images fail stays stale and is
// retried on the next run.
type ImageService struct {
	erp      imageERP
	products imageProductStore
	images   imageStore
	ttl      time.Duration
}

// NewImageService constructs an ImageService. Products whose mirror is
// younger than ttl are skipped.
func NewImageService(erp imageERP, products imageProductStore, images imageStore, ttl time.Duration) *ImageService {
	return &ImageService{erp: erp, products: products, images: images, ttl: ttl}
}

// MirrorSince refreshes the image sets of products synced since the given
// time whose mirror is older than the TTL. Per-product failures are logged
// and skipped; only a canceled context stops the walk.
func (s *ImageService) MirrorSince(ctx context.Context, syncedSince time.Time) error {
	stale, err := s.products.ListImageStale(syncedSince, s.ttl)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	log.Info().Int("products", len(stale)).Msg("mirroring product images")

	for i := range stale {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := &stale[i]
		if err := s.mirrorProduct(ctx, p); err != nil {
			log.Warn().Err(err).
				Str("upstream_id", p.UpstreamID).
				Str("article", p.Article).
				Msg("failed to mirror product images")
			continue
		}
		if err := s.products.SetImageSynced(p.ID); err != nil {
			log.Warn().Err(err).Int("product_id", p.ID).Msg("failed to stamp image sync time")
		}
	}
	return nil
}

// mirrorProduct downloads a product's images and replaces the stored set.
// The first image in the upstream list is the main image.
func (s *ImageService) mirrorProduct(ctx context.Context, p *models.Product) error {
	upstream, err := s.erp.ProductImages(ctx, p.UpstreamID)
	if err != nil {
		return err
	}

	mirrored := make([]models.ProductImage, 0, len(upstream))
	for i, img := range upstream {
		data, err := s.erp.DownloadImage(ctx, img.DownloadHref())
		if err != nil {
			return err
		}
		var thumb []byte
		if href := img.MiniatureHref(); href != "" {
			// A missing thumbnail is not worth failing the product over.
			if t, err := s.erp.DownloadImage(ctx, href); err == nil {
				thumb = t
			}
		}
		mirrored = append(mirrored, models.ProductImage{
			ProductID: p.ID,
			RemoteURL: img.DownloadHref(),
			IsMain:    i == 0,
			Data:      data,
			Thumbnail: thumb,
		})
	}

	return s.images.ReplaceForProduct(p.ID, mirrored)
}
