package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"portalti-api/config"
	"portalti-api/models"
)

// GormDocumentStore is the MySQL-backed DocumentStore. The embedded
// collections live as JSON on the aggregate row, so a single guarded UPDATE
// commits a whole workflow mutation atomically.
type GormDocumentStore struct {
	db *gorm.DB
}

func NewGormDocumentStore(db *gorm.DB) *GormDocumentStore {
	if db == nil {
		db = config.DB
	}
	return &GormDocumentStore{db: db}
}

func (s *GormDocumentStore) Get(ctx context.Context, id int) (*models.PazYSalvo, error) {
	var doc models.PazYSalvo
	err := s.db.WithContext(ctx).
		Where("pys_id = ? AND delete_at IS NULL", id).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "paz y salvo", ID: id}
		}
		return nil, err
	}
	return &doc, nil
}

func (s *GormDocumentStore) Create(ctx context.Context, doc *models.PazYSalvo) error {
	now := time.Now()
	doc.CreateAt = &now
	doc.UpdateAt = &now
	doc.Version = 1
	return s.db.WithContext(ctx).Create(doc).Error
}

// Update persists the aggregate with a compare-and-swap on the version
// column. The serializer tag only applies to struct writes, so the JSON
// collections are marshaled explicitly for the column map.
func (s *GormDocumentStore) Update(ctx context.Context, doc *models.PazYSalvo, expectedVersion int) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.PazYSalvo{}).
		Where("pys_id = ? AND version = ?", doc.ID, expectedVersion).
		Updates(map[string]interface{}{
			"status":          doc.Status,
			"observations":    doc.Observations,
			"signatures":      mustJSON(doc.Slots),
			"history":         mustJSON(doc.History),
			"exceptions":      mustJSON(doc.Exceptions),
			"attachments":     mustJSON(doc.Attachments),
			"assets_snapshot": mustJSON(doc.AssetsSnapshot),
			"sent_at":         doc.SentAt,
			"approved_at":     doc.ApprovedAt,
			"closed_at":       doc.ClosedAt,
			"pdf_path":        doc.PDFPath,
			"final_hash":      doc.FinalHash,
			"version":         expectedVersion + 1,
			"update_at":       now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	doc.Version = expectedVersion + 1
	doc.UpdateAt = &now
	return nil
}

func (s *GormDocumentStore) Search(ctx context.Context, q DocumentQuery) ([]models.PazYSalvo, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.PazYSalvo{}).
		Where("delete_at IS NULL")

	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}
	if q.Search != "" {
		like := "%" + q.Search + "%"
		query = query.Where(
			"employee_name LIKE ? OR employee_rut LIKE ? OR reason LIKE ?",
			like, like, like,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var docs []models.PazYSalvo
	offset := (q.Page - 1) * q.PageSize
	err := query.Order("create_at DESC").
		Offset(offset).
		Limit(q.PageSize).
		Find(&docs).Error
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

func mustJSON(v interface{}) string {
	if v == nil {
		return "[]"
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(raw)
}
