package models

import (
	"time"

	"gorm.io/datatypes"
)

// KeyCustodyRecord — единственная долговременная копия приватного
// материала пира. Маршрутизатор приватный ключ после создания не отдаёт,
// поэтому потеря записи невосстановима (только полная регенерация).
//
// Инвариант: RouterID обязан ссылаться на существующий пир маршрутизатора;
// нарушение — «сирота», которую убирает reconcile.
type KeyCustodyRecord struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RouterID       string `gorm:"uniqueIndex;size:64;not null" json:"router_id"`
	Name           string `gorm:"size:255" json:"name"`
	PrivateKey     string `gorm:"size:64;not null" json:"-"`
	PresharedKey   string `gorm:"size:64" json:"-"`
	AllowedAddress string `gorm:"size:64" json:"allowed_address"`

	// Свободные атрибуты клиента (устройство, владелец и т.п.)
	Attributes datatypes.JSON `json:"attributes,omitempty"`
}
