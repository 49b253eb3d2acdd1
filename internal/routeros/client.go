package routeros

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrPeerNotFound = errors.New("routeros: peer not found")

const peersPath = "/rest/interface/wireguard/peers"

// Client — REST-клиент RouterOS v7 (BasicAuth поверх HTTPS).
// Привязан к одному wg-интерфейсу: списки фильтруются по нему,
// create подставляет его, если поле не задано.
type Client struct {
	base  string
	user  string
	pass  string
	iface string
	httpc *http.Client
}

func New(address, username, password, iface string, insecureTLS bool, timeout time.Duration) *Client {
	transport := http.DefaultTransport
	if insecureTLS {
		// Маршрутизаторы в LAN почти всегда с self-signed сертификатом.
		transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		base:  strings.TrimRight(address, "/"),
		user:  username,
		pass:  password,
		iface: iface,
		httpc: &http.Client{Timeout: timeout, Transport: transport},
	}
}

// ListPeers возвращает пиров привязанного интерфейса.
func (c *Client) ListPeers(ctx context.Context) ([]Peer, error) {
	body, err := c.do(ctx, http.MethodGet, peersPath, nil)
	if err != nil {
		return nil, err
	}
	var raws []rawPeer
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("routeros: decode peers: %w", err)
	}
	peers := make([]Peer, 0, len(raws))
	for _, r := range raws {
		if c.iface != "" && r.Interface != c.iface {
			continue
		}
		peers = append(peers, r.toPeer())
	}
	return peers, nil
}

func (c *Client) GetPeer(ctx context.Context, id string) (*Peer, error) {
	body, err := c.do(ctx, http.MethodGet, peersPath+"/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var r rawPeer
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("routeros: decode peer: %w", err)
	}
	p := r.toPeer()
	return &p, nil
}

// CreatePeer создаёт пира и возвращает типизированный результат:
// какой формы ответ пришёл и извлечённый идентификатор (если был).
// Дальнейшее разрешение OutcomeNoID — забота вызывающего.
func (c *Client) CreatePeer(ctx context.Context, f PeerFields) (CreateOutcome, error) {
	if f.Interface == "" {
		f.Interface = c.iface
	}
	body, err := c.do(ctx, http.MethodPut, peersPath, f.wire())
	if err != nil {
		return CreateOutcome{}, err
	}
	return decodeCreateOutcome(body), nil
}

func (c *Client) UpdatePeer(ctx context.Context, id string, f PeerFields) error {
	_, err := c.do(ctx, http.MethodPatch, peersPath+"/"+url.PathEscape(id), f.wire())
	return err
}

func (c *Client) DeletePeer(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, peersPath+"/"+url.PathEscape(id), nil)
	return err
}

// GetInterfaceInfo возвращает параметры привязанного wg-интерфейса.
func (c *Client) GetInterfaceInfo(ctx context.Context) (*InterfaceInfo, error) {
	body, err := c.do(ctx, http.MethodGet, "/rest/interface/wireguard", nil)
	if err != nil {
		return nil, err
	}
	var raws []rawInterface
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("routeros: decode interfaces: %w", err)
	}
	for _, r := range raws {
		if r.Name == c.iface {
			return &InterfaceInfo{Name: r.Name, PublicKey: r.PublicKey, ListenPort: r.ListenPort}, nil
		}
	}
	return nil, fmt.Errorf("routeros: wireguard interface %q not found", c.iface)
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var rd io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.user, c.pass)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("routeros: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("routeros: read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrPeerNotFound
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("routeros: %s %s: status %d: %s",
			method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
