package routeros

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "admin", "secret", "wireguard1", false, 2*time.Second)
}

func TestListPeersFiltersByInterface(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/interface/wireguard/peers", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "admin", user)
		assert.Equal(t, "secret", pass)
		_, _ = w.Write([]byte(`[
			{".id":"*1","interface":"wireguard1","public-key":"pk1","allowed-address":"172.16.0.2/32","comment":"one","disabled":"false","rx":"1024","tx":"2048","last-handshake":"1m2s"},
			{".id":"*2","interface":"other","public-key":"pk2","allowed-address":"10.0.0.2/32","comment":"two","disabled":"true"}
		]`))
	})

	peers, err := c.ListPeers(context.Background())
	require.NoError(t, err)
	require.Len(t, peers, 1, "peers of other interfaces are filtered out")

	p := peers[0]
	assert.Equal(t, "*1", p.ID)
	assert.Equal(t, "pk1", p.PublicKey)
	assert.Equal(t, "172.16.0.2/32", p.AllowedAddress)
	assert.Equal(t, "one", p.Comment)
	assert.False(t, p.Disabled)
	assert.Equal(t, int64(1024), p.Rx)
	assert.Equal(t, int64(2048), p.Tx)
	assert.Equal(t, "1m2s", p.LastHandshake)
}

func TestGetPeerNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := c.GetPeer(context.Background(), "*404")
	require.ErrorIs(t, err, ErrPeerNotFound)
}

func TestCreatePeerSendsWireFields(t *testing.T) {
	comment := "laptop"
	disabled := false
	psk := "psk-value"

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{
			"interface":       "wireguard1",
			"public-key":      "pub",
			"allowed-address": "172.16.0.5/32",
			"comment":         "laptop",
			"disabled":        "false",
			"preshared-key":   "psk-value",
		}, body)
		_, _ = w.Write([]byte(`{".id":"*A"}`))
	})

	outcome, err := c.CreatePeer(context.Background(), PeerFields{
		PublicKey:      "pub",
		AllowedAddress: "172.16.0.5/32",
		Comment:        &comment,
		Disabled:       &disabled,
		PresharedKey:   &psk,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDirectID, outcome.Kind)
	assert.Equal(t, "*A", outcome.ID)
}

func TestDecodeCreateOutcome(t *testing.T) {
	tests := []struct {
		name string
		body string
		want CreateOutcome
	}{
		{"direct id", `{".id":"*1F","public-key":"pk"}`, CreateOutcome{Kind: OutcomeDirectID, ID: "*1F"}},
		{"nested ret", `{"ret":"*2A"}`, CreateOutcome{Kind: OutcomeNestedID, ID: "*2A"}},
		{"empty object", `{}`, CreateOutcome{Kind: OutcomeNoID}},
		{"empty body", ``, CreateOutcome{Kind: OutcomeNoID}},
		{"array response", `[]`, CreateOutcome{Kind: OutcomeNoID}},
		{"empty id value", `{".id":""}`, CreateOutcome{Kind: OutcomeNoID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeCreateOutcome([]byte(tt.body)))
		})
	}
}

func TestUpdatePeerOmitsUnsetFields(t *testing.T) {
	disabled := true
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/rest/interface/wireguard/peers/*1", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"disabled": "true"}, body,
			"nil fields must not be sent, PATCH would wipe them")
		_, _ = w.Write([]byte(`{}`))
	})

	err := c.UpdatePeer(context.Background(), "*1", PeerFields{Disabled: &disabled})
	require.NoError(t, err)
}

func TestDeletePeer(t *testing.T) {
	var gotMethod, gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, c.DeletePeer(context.Background(), "*1"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/rest/interface/wireguard/peers/*1", gotPath)
}

func TestGetInterfaceInfo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/interface/wireguard", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"name":"other","public-key":"nope","listen-port":"1"},
			{"name":"wireguard1","public-key":"srv-pub","listen-port":"51820"}
		]`))
	})

	info, err := c.GetInterfaceInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "wireguard1", info.Name)
	assert.Equal(t, "srv-pub", info.PublicKey)
	assert.Equal(t, "51820", info.ListenPort)
}

func TestGetInterfaceInfoMissing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	_, err := c.GetInterfaceInfo(context.Background())
	require.Error(t, err)
}

func TestUpstreamErrorIncludesBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"invalid public key"}`))
	})
	_, err := c.ListPeers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid public key")
}

func TestLastSeenFallback(t *testing.T) {
	raw := rawPeer{LastSeen: "5m"}
	assert.Equal(t, "5m", raw.toPeer().LastHandshake)
}
