package provision

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/cloudxmr/Wireguard-Manager/internal/repo"
)

// ExportConfig собирает клиентский туннельный конфиг по custody-записи.
// Формат документа — байт-в-байт контракт с клиентским софтом:
// порядок полей фиксирован, PresharedKey опционален.
// Возвращает имя файла для выгрузки и содержимое.
func (s *Service) ExportConfig(ctx context.Context, id string) (string, []byte, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, repo.ErrRecordNotFound) {
			return "", nil, fmt.Errorf("custody record %s: %w", id, err)
		}
		recs, lerr := s.store.ListAll(ctx)
		if lerr != nil {
			return "", nil, fmt.Errorf("list custody records: %w", lerr)
		}
		available := make([]string, 0, len(recs))
		for _, r := range recs {
			available = append(available, r.RouterID)
		}
		return "", nil, &ConfigUnavailableError{ID: id, Available: available}
	}

	info, err := s.router.GetInterfaceInfo(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("interface info: %w", err)
	}
	if info.PublicKey == "" {
		return "", nil, ErrServerNotConfigured
	}

	keepalive := s.cfg.WireGuard.Keepalive
	if keepalive <= 0 {
		keepalive = 25
	}
	doc := renderClientConfig(clientConfig{
		PrivateKey:   rec.PrivateKey,
		Address:      rec.AllowedAddress,
		DNS:          s.cfg.WireGuard.DNS,
		ServerPub:    info.PublicKey,
		Endpoint:     s.cfg.WireGuard.Endpoint,
		AllowedIPs:   strings.Join(s.cfg.WireGuard.AllowedIPs, ", "),
		PresharedKey: rec.PresharedKey,
		Keepalive:    keepalive,
	})
	return sanitizeFilename(rec.Name) + ".conf", doc, nil
}

type clientConfig struct {
	PrivateKey   string
	Address      string
	DNS          string
	ServerPub    string
	Endpoint     string
	AllowedIPs   string
	PresharedKey string
	Keepalive    int
}

func renderClientConfig(c clientConfig) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "[Interface]\n")
	fmt.Fprintf(&b, "PrivateKey = %s\n", c.PrivateKey)
	fmt.Fprintf(&b, "Address = %s\n", c.Address)
	if c.DNS != "" {
		fmt.Fprintf(&b, "DNS = %s\n", c.DNS)
	}
	fmt.Fprintf(&b, "\n[Peer]\n")
	fmt.Fprintf(&b, "PublicKey = %s\n", c.ServerPub)
	fmt.Fprintf(&b, "Endpoint = %s\n", c.Endpoint)
	fmt.Fprintf(&b, "AllowedIPs = %s\n", c.AllowedIPs)
	if c.PresharedKey != "" {
		fmt.Fprintf(&b, "PresharedKey = %s\n", c.PresharedKey)
	}
	fmt.Fprintf(&b, "PersistentKeepalive = %d\n", c.Keepalive)
	return []byte(b.String())
}

var filenameRe = regexp.MustCompile(`[^A-Za-z0-9-_]+`)

// sanitizeFilename оставляет только [A-Za-z0-9-_]; пустой остаток — "peer".
func sanitizeFilename(name string) string {
	clean := filenameRe.ReplaceAllString(name, "")
	if clean == "" {
		return "peer"
	}
	return clean
}
