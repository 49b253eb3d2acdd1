package provision

import (
	"context"
	"fmt"
	"testing"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
	"gorm.io/datatypes"

	"github.com/cloudxmr/Wireguard-Manager/config"
	"github.com/cloudxmr/Wireguard-Manager/internal/keys"
	"github.com/cloudxmr/Wireguard-Manager/internal/models"
	"github.com/cloudxmr/Wireguard-Manager/internal/repo"
	"github.com/cloudxmr/Wireguard-Manager/internal/routeros"
)

// fakeRouter is an in-memory stand-in for the RouterOS client with
// injectable failures and a controllable create-response shape.
type fakeRouter struct {
	peers  map[string]routeros.Peer
	order  []string
	nextID int
	iface  *routeros.InterfaceInfo

	outcomeKind routeros.OutcomeKind
	dropCreated bool // simulate a create that never landed

	listErr   error
	createErr error
	updateErr error
	deleteErr error
	ifaceErr  error

	deleted []string
	created int
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{
		peers:  map[string]routeros.Peer{},
		nextID: 1,
		iface: &routeros.InterfaceInfo{
			Name:       "wireguard1",
			PublicKey:  "srvPUBsrvPUBsrvPUBsrvPUBsrvPUBsrvPUBsrvPUB=",
			ListenPort: "51820",
		},
		outcomeKind: routeros.OutcomeDirectID,
	}
}

func (f *fakeRouter) addPeer(id, publicKey, address, comment string) {
	f.peers[id] = routeros.Peer{
		ID:             id,
		Interface:      "wireguard1",
		PublicKey:      publicKey,
		AllowedAddress: address,
		Comment:        comment,
	}
	f.order = append(f.order, id)
}

func (f *fakeRouter) ListPeers(context.Context) ([]routeros.Peer, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]routeros.Peer, 0, len(f.peers))
	for _, id := range f.order {
		if p, ok := f.peers[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRouter) GetPeer(_ context.Context, id string) (*routeros.Peer, error) {
	p, ok := f.peers[id]
	if !ok {
		return nil, routeros.ErrPeerNotFound
	}
	return &p, nil
}

func (f *fakeRouter) CreatePeer(_ context.Context, fl routeros.PeerFields) (routeros.CreateOutcome, error) {
	if f.createErr != nil {
		return routeros.CreateOutcome{}, f.createErr
	}
	f.created++
	if f.dropCreated {
		return routeros.CreateOutcome{Kind: routeros.OutcomeNoID}, nil
	}
	id := fmt.Sprintf("*%X", f.nextID)
	f.nextID++
	p := routeros.Peer{
		ID:              id,
		Interface:       "wireguard1",
		PublicKey:       fl.PublicKey,
		AllowedAddress:  fl.AllowedAddress,
		HasPresharedKey: fl.PresharedKey != nil,
	}
	if fl.Comment != nil {
		p.Comment = *fl.Comment
	}
	if fl.Disabled != nil {
		p.Disabled = *fl.Disabled
	}
	f.peers[id] = p
	f.order = append(f.order, id)
	if f.outcomeKind == routeros.OutcomeNoID {
		return routeros.CreateOutcome{Kind: routeros.OutcomeNoID}, nil
	}
	return routeros.CreateOutcome{Kind: f.outcomeKind, ID: id}, nil
}

func (f *fakeRouter) UpdatePeer(_ context.Context, id string, fl routeros.PeerFields) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	p, ok := f.peers[id]
	if !ok {
		return routeros.ErrPeerNotFound
	}
	if fl.AllowedAddress != "" {
		p.AllowedAddress = fl.AllowedAddress
	}
	if fl.Comment != nil {
		p.Comment = *fl.Comment
	}
	if fl.Disabled != nil {
		p.Disabled = *fl.Disabled
	}
	if fl.PresharedKey != nil {
		p.HasPresharedKey = true
	}
	f.peers[id] = p
	return nil
}

func (f *fakeRouter) DeletePeer(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.peers, id)
	return nil
}

func (f *fakeRouter) GetInterfaceInfo(context.Context) (*routeros.InterfaceInfo, error) {
	if f.ifaceErr != nil {
		return nil, f.ifaceErr
	}
	return f.iface, nil
}

// fakeStore is an in-memory custody store.
type fakeStore struct {
	recs map[string]models.KeyCustodyRecord

	saveErr   error
	deleteErr error
	pskErr    error

	deleted []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{recs: map[string]models.KeyCustodyRecord{}}
}

func (f *fakeStore) Save(_ context.Context, rec *models.KeyCustodyRecord) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.recs[rec.RouterID] = *rec
	return nil
}

func (f *fakeStore) Get(_ context.Context, routerID string) (*models.KeyCustodyRecord, error) {
	rec, ok := f.recs[routerID]
	if !ok {
		return nil, repo.ErrRecordNotFound
	}
	return &rec, nil
}

func (f *fakeStore) ListAll(context.Context) ([]models.KeyCustodyRecord, error) {
	out := make([]models.KeyCustodyRecord, 0, len(f.recs))
	for _, rec := range f.recs {
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeStore) Delete(_ context.Context, routerID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.recs, routerID)
	f.deleted = append(f.deleted, routerID)
	return nil
}

func (f *fakeStore) UpdatePresharedKey(_ context.Context, routerID, psk string) error {
	if f.pskErr != nil {
		return f.pskErr
	}
	rec, ok := f.recs[routerID]
	if !ok {
		return repo.ErrRecordNotFound
	}
	rec.PresharedKey = psk
	f.recs[routerID] = rec
	return nil
}

// UpdateMeta mirrors the real store: empty fields are "not provided".
func (f *fakeStore) UpdateMeta(_ context.Context, routerID, name, allowedAddress string, attributes datatypes.JSON) error {
	rec, ok := f.recs[routerID]
	if !ok {
		return nil
	}
	if name != "" {
		rec.Name = name
	}
	if allowedAddress != "" {
		rec.AllowedAddress = allowedAddress
	}
	if len(attributes) > 0 {
		rec.Attributes = attributes
	}
	f.recs[routerID] = rec
	return nil
}

// fakeGen returns real Curve25519 material unless overridden.
type fakeGen struct {
	kp  *keys.KeyPair
	err error
}

func (g *fakeGen) Generate(withPSK bool) (*keys.KeyPair, error) {
	if g.err != nil {
		return nil, g.err
	}
	if g.kp != nil {
		kp := *g.kp
		if !withPSK {
			kp.PresharedKey = ""
		}
		return &kp, nil
	}
	return realKeyPair(withPSK)
}

func realKeyPair(withPSK bool) (*keys.KeyPair, error) {
	priv, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	kp := &keys.KeyPair{PrivateKey: priv.String(), PublicKey: priv.PublicKey().String()}
	if withPSK {
		psk, err := wgtypes.GenerateKey()
		if err != nil {
			return nil, err
		}
		kp.PresharedKey = psk.String()
	}
	return kp, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.WireGuard.Interface = "wireguard1"
	cfg.WireGuard.SubnetCIDR = "172.16.0.0/24"
	cfg.WireGuard.Endpoint = "vpn.example.com:51820"
	cfg.WireGuard.DNS = "1.1.1.1"
	cfg.WireGuard.AllowedIPs = []string{"0.0.0.0/0"}
	cfg.WireGuard.Keepalive = 25
	return cfg
}

func newTestService(t *testing.T) (*Service, *fakeRouter, *fakeStore, *fakeGen) {
	t.Helper()
	router := newFakeRouter()
	store := newFakeStore()
	gen := &fakeGen{}
	return New(router, store, gen, testConfig()), router, store, gen
}
