package models

import "gorm.io/datatypes"

// PeerIdentity — пир, каким его видит маршрутизатор. Владелец — RouterOS:
// мы никогда не персистим эту структуру, только читаем и мутируем через
// REST-клиент. Телеметрия (handshake/rx/tx) read-only и не кешируется.
type PeerIdentity struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	PublicKey       string `json:"public_key"`
	AllowedAddress  string `json:"allowed_address"`
	Enabled         bool   `json:"enabled"`
	PresharedKey    bool   `json:"preshared_key"`
	LastHandshake   string `json:"last_handshake,omitempty"`
	RxBytes         int64  `json:"rx_bytes"`
	TxBytes         int64  `json:"tx_bytes"`
	ConfigAvailable bool   `json:"config_available"`

	// Атрибуты берутся из custody-записи; у пира без записи их нет.
	Attributes datatypes.JSON `json:"attributes,omitempty"`
}

// ServerInfo — параметры wg-интерфейса на маршрутизаторе + endpoint
// из конфигурации. Отдаётся клиенту как есть.
type ServerInfo struct {
	Interface  string `json:"interface"`
	PublicKey  string `json:"public_key"`
	ListenPort string `json:"listen_port"`
	Endpoint   string `json:"endpoint"`
}

// ---- запросы API ----

type CreatePeerRequest struct {
	Name            string         `json:"name"`
	AllowedAddress  string         `json:"allowed_address,omitempty"`
	UsePresharedKey *bool          `json:"use_preshared_key,omitempty"` // nil => true
	Attributes      datatypes.JSON `json:"attributes,omitempty"`
}

// UpdatePeerRequest: пустые Name/AllowedAddress и nil Attributes значат
// «не задано» — поле не трогается ни на маршрутизаторе, ни в custody.
type UpdatePeerRequest struct {
	Name               string         `json:"name"`
	AllowedAddress     string         `json:"allowed_address"`
	Enabled            bool           `json:"enabled"`
	UpdatePresharedKey bool           `json:"update_preshared_key,omitempty"`
	Regenerate         bool           `json:"regenerate,omitempty"`
	Attributes         datatypes.JSON `json:"attributes,omitempty"`
}

type ReconcileResponse struct {
	Removed int `json:"removed"`
}
