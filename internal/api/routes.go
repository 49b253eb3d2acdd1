package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

func RegisterRoutes(r *mux.Router, h *Handler) {
	sub := r.PathPrefix("/api").Subrouter()
	sub.HandleFunc("/peers", h.ListPeers).Methods(http.MethodGet)
	sub.HandleFunc("/peers", h.CreatePeer).Methods(http.MethodPost)
	// до /peers/{id}, иначе "reconcile" уйдёт в {id}
	sub.HandleFunc("/peers/reconcile", h.Reconcile).Methods(http.MethodPost)
	sub.HandleFunc("/peers/{id}", h.UpdatePeer).Methods(http.MethodPatch)
	sub.HandleFunc("/peers/{id}", h.DeletePeer).Methods(http.MethodDelete)
	sub.HandleFunc("/peers/{id}/toggle", h.TogglePeer).Methods(http.MethodPost)
	sub.HandleFunc("/peers/{id}/config", h.PeerConfig).Methods(http.MethodGet)
	sub.HandleFunc("/server", h.ServerInfo).Methods(http.MethodGet)
}
