package routeros

import (
	"encoding/json"
	"strconv"
)

// Peer — wg-пир, как его отдаёт RouterOS. Идентификатор назначает
// маршрутизатор (".id" вида "*1A"), мы его не выбираем.
type Peer struct {
	ID              string
	Interface       string
	PublicKey       string
	AllowedAddress  string
	Comment         string
	Disabled        bool
	HasPresharedKey bool
	LastHandshake   string
	Rx              int64
	Tx              int64
}

// InterfaceInfo — wg-интерфейс сервера на маршрутизаторе.
type InterfaceInfo struct {
	Name       string
	PublicKey  string
	ListenPort string
}

// PeerFields — поля create/update. Указательные поля с nil не отправляются,
// чтобы PATCH не затирал то, что не меняли.
type PeerFields struct {
	Interface      string
	PublicKey      string
	AllowedAddress string
	Comment        *string
	Disabled       *bool
	PresharedKey   *string
}

// wire сериализует поля в формат RouterOS REST: все значения — строки,
// булевы как "true"/"false".
func (f PeerFields) wire() map[string]string {
	m := map[string]string{}
	if f.Interface != "" {
		m["interface"] = f.Interface
	}
	if f.PublicKey != "" {
		m["public-key"] = f.PublicKey
	}
	if f.AllowedAddress != "" {
		m["allowed-address"] = f.AllowedAddress
	}
	if f.Comment != nil {
		m["comment"] = *f.Comment
	}
	if f.Disabled != nil {
		m["disabled"] = strconv.FormatBool(*f.Disabled)
	}
	if f.PresharedKey != nil {
		m["preshared-key"] = *f.PresharedKey
	}
	return m
}

// OutcomeKind — форма, в которой RouterOS вернул (или не вернул)
// идентификатор созданного пира. API в разных версиях отвечает по-разному.
type OutcomeKind int

const (
	OutcomeDirectID OutcomeKind = iota // объект созданного пира с ".id"
	OutcomeNestedID                    // {"ret": "<id>"}
	OutcomeNoID                        // идентификатора нет, нужен re-list
)

// CreateOutcome — типизированный результат создания.
// Разбор формы ответа сосредоточен в decodeCreateOutcome, а не размазан
// по вызывающим местам.
type CreateOutcome struct {
	Kind OutcomeKind
	ID   string
}

func decodeCreateOutcome(body []byte) CreateOutcome {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return CreateOutcome{Kind: OutcomeNoID}
	}
	if raw, ok := m[".id"]; ok {
		var id string
		if json.Unmarshal(raw, &id) == nil && id != "" {
			return CreateOutcome{Kind: OutcomeDirectID, ID: id}
		}
	}
	if raw, ok := m["ret"]; ok {
		var id string
		if json.Unmarshal(raw, &id) == nil && id != "" {
			return CreateOutcome{Kind: OutcomeNestedID, ID: id}
		}
	}
	return CreateOutcome{Kind: OutcomeNoID}
}

// rawPeer — wire-представление: RouterOS отдаёт все значения строками.
type rawPeer struct {
	ID             string `json:".id"`
	Interface      string `json:"interface"`
	PublicKey      string `json:"public-key"`
	AllowedAddress string `json:"allowed-address"`
	Comment        string `json:"comment"`
	Disabled       string `json:"disabled"`
	PresharedKey   string `json:"preshared-key"`
	LastHandshake  string `json:"last-handshake"`
	LastSeen       string `json:"last-seen"`
	Rx             string `json:"rx"`
	RxBytes        string `json:"rx-bytes"`
	Tx             string `json:"tx"`
	TxBytes        string `json:"tx-bytes"`
}

func (r rawPeer) toPeer() Peer {
	hs := r.LastHandshake
	if hs == "" {
		hs = r.LastSeen
	}
	return Peer{
		ID:              r.ID,
		Interface:       r.Interface,
		PublicKey:       r.PublicKey,
		AllowedAddress:  r.AllowedAddress,
		Comment:         r.Comment,
		Disabled:        r.Disabled == "true",
		HasPresharedKey: r.PresharedKey != "",
		LastHandshake:   hs,
		Rx:              parseBytes(r.Rx, r.RxBytes),
		Tx:              parseBytes(r.Tx, r.TxBytes),
	}
}

func parseBytes(vals ...string) int64 {
	for _, v := range vals {
		if v == "" {
			continue
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

type rawInterface struct {
	Name       string `json:"name"`
	PublicKey  string `json:"public-key"`
	ListenPort string `json:"listen-port"`
}
