package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/cloudxmr/Wireguard-Manager/internal/ipam"
	"github.com/cloudxmr/Wireguard-Manager/internal/keys"
	"github.com/cloudxmr/Wireguard-Manager/internal/models"
	"github.com/cloudxmr/Wireguard-Manager/internal/provision"
)

// Provisioner — операции оркестратора, которые публикует API.
type Provisioner interface {
	List(ctx context.Context, cleanup bool) ([]models.PeerIdentity, error)
	Create(ctx context.Context, req models.CreatePeerRequest) (*models.PeerIdentity, error)
	Update(ctx context.Context, id string, req models.UpdatePeerRequest) (*models.PeerIdentity, error)
	Toggle(ctx context.Context, id string) (*models.PeerIdentity, error)
	Delete(ctx context.Context, id string) error
	ExportConfig(ctx context.Context, id string) (string, []byte, error)
	ReconcileOrphans(ctx context.Context) (int, error)
	ServerInfo(ctx context.Context) (*models.ServerInfo, error)
}

func NewHandler(svc Provisioner) *Handler { return &Handler{svc: svc} }

type Handler struct {
	svc Provisioner
}

func (h *Handler) ListPeers(w http.ResponseWriter, r *http.Request) {
	cleanup := r.URL.Query().Get("cleanup") == "1" || r.URL.Query().Get("cleanup") == "true"
	peers, err := h.svc.List(r.Context(), cleanup)
	if err != nil {
		h.writeError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, peers)
}

func (h *Handler) CreatePeer(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePeerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", err.Error(), nil)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "name is required", nil)
		return
	}
	peer, err := h.svc.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusCreated, peer)
}

func (h *Handler) UpdatePeer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req models.UpdatePeerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", err.Error(), nil)
		return
	}
	if req.UpdatePresharedKey && req.Regenerate {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request",
			"update_preshared_key and regenerate are mutually exclusive", nil)
		return
	}
	peer, err := h.svc.Update(r.Context(), id, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, peer)
}

func (h *Handler) TogglePeer(w http.ResponseWriter, r *http.Request) {
	peer, err := h.svc.Toggle(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, peer)
}

func (h *Handler) DeletePeer(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PeerConfig отдаёт туннельный конфиг файлом text/plain.
func (h *Handler) PeerConfig(w http.ResponseWriter, r *http.Request) {
	filename, doc, err := h.svc.ExportConfig(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	removed, err := h.svc.ReconcileOrphans(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, models.ReconcileResponse{Removed: removed})
}

func (h *Handler) ServerInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.ServerInfo(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, info)
}

// writeError — тонкий слой домен→HTTP: 404 для отсутствующих ресурсов,
// 500 для upstream/внутренних. Сам маппинг не часть контракта ядра.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var cu *provision.ConfigUnavailableError
	switch {
	case errors.As(err, &cu):
		models.WriteProblem(w, http.StatusNotFound, "Config Unavailable", cu.Error(), map[string]any{
			"available_ids": cu.Available,
		})
	case errors.Is(err, provision.ErrNotFound):
		models.WriteProblem(w, http.StatusNotFound, "Not Found", err.Error(), nil)
	case errors.Is(err, provision.ErrServerNotConfigured),
		errors.Is(err, provision.ErrPeerIDResolutionFailed),
		errors.Is(err, keys.ErrKeyGenerationUnavailable),
		errors.Is(err, keys.ErrInvalidGeneratedKey),
		errors.Is(err, ipam.ErrAddressPoolExhausted):
		models.WriteProblem(w, http.StatusInternalServerError, "Provisioning Failed", err.Error(), nil)
	default:
		models.WriteProblem(w, http.StatusInternalServerError, "Upstream Failure", err.Error(), nil)
	}
}
