package repository

import (
	"github.com/jmoiron/sqlx"

	"github.com/prodplan/prodplan_api/internal/models"
)

// ImageRepository handles data access for mirrored product images.
type ImageRepository struct {
	db *sqlx.DB
}

// NewImageRepository creates a new ImageRepository.
func NewImageRepository(db *sqlx.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// ReplaceForProduct swaps a product's mirrored images in one transaction so
// readers never observe a half-replaced set.
func (r *ImageRepository) ReplaceForProduct(productID int, images []models.ProductImage) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM product_images WHERE product_id = $1`, productID); err != nil {
		return err
	}

	const q = `
        INSERT INTO product_images (product_id, remote_url, is_main, data, thumbnail)
        VALUES ($1, $2, $3, $4, $5)`
	for _, img := range images {
		if _, err := tx.Exec(q, productID, img.RemoteURL, img.IsMain, img.Data, img.Thumbnail); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListForProduct returns a product's images, main image first.
func (r *ImageRepository) ListForProduct(productID int) ([]models.ProductImage, error) {
	const q = `
        SELECT id, product_id, remote_url, is_main, created_at
        FROM product_images
        WHERE product_id = $1
        ORDER BY is_main DESC, id ASC`

	var images []models.ProductImage
	if err := r.db.Select(&images, q, productID); err != nil {
		return nil, err
	}
	return images, nil
}

// GetData returns the raw bytes of one image.
func (r *ImageRepository) GetData(imageID int) ([]byte, error) {
	var data []byte
	if err := r.db.Get(&data, `SELECT data FROM product_images WHERE id = $1`, imageID); err != nil {
		return nil, err
	}
	return data, nil
}
