package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cloudxmr/Wireguard-Manager/internal/models"
)

var ErrRecordNotFound = errors.New("custody record not found")

// CustodyStore — долговременное хранилище приватного материала пиров.
// Единственные мутаторы — оркестратор и reconcile.
type CustodyStore struct{ db *gorm.DB }

func NewCustodyStore(db *gorm.DB) *CustodyStore { return &CustodyStore{db: db} }

func (s *CustodyStore) Save(ctx context.Context, rec *models.KeyCustodyRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	return s.db.WithContext(ctx).Create(rec).Error
}

// Get возвращает запись по идентификатору маршрутизатора;
// отсутствие — ErrRecordNotFound, а не nil-nil.
func (s *CustodyStore) Get(ctx context.Context, routerID string) (*models.KeyCustodyRecord, error) {
	var rec models.KeyCustodyRecord
	err := s.db.WithContext(ctx).Where("router_id = ?", routerID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *CustodyStore) ListAll(ctx context.Context) ([]models.KeyCustodyRecord, error) {
	var recs []models.KeyCustodyRecord
	err := s.db.WithContext(ctx).Order("created_at").Find(&recs).Error
	return recs, err
}

func (s *CustodyStore) Delete(ctx context.Context, routerID string) error {
	return s.db.WithContext(ctx).
		Where("router_id = ?", routerID).
		Delete(&models.KeyCustodyRecord{}).Error
}

func (s *CustodyStore) UpdatePresharedKey(ctx context.Context, routerID, psk string) error {
	res := s.db.WithContext(ctx).Model(&models.KeyCustodyRecord{}).
		Where("router_id = ?", routerID).
		Updates(map[string]any{
			"preshared_key": psk,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// UpdateMeta обновляет изменяемые поля записи вслед за in-place правкой
// пира на маршрутизаторе. Пустое имя/адрес и nil-атрибуты — «не задано»,
// такие поля остаются как были: маршрутизатор их тоже не менял.
func (s *CustodyStore) UpdateMeta(ctx context.Context, routerID, name, allowedAddress string, attributes datatypes.JSON) error {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if name != "" {
		updates["name"] = name
	}
	if allowedAddress != "" {
		updates["allowed_address"] = allowedAddress
	}
	if len(attributes) > 0 {
		updates["attributes"] = attributes
	}
	if len(updates) == 1 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.KeyCustodyRecord{}).
		Where("router_id = ?", routerID).
		Updates(updates).Error
}
