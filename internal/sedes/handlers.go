package sedes

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"inventario/internal/inventory"
	"inventario/internal/logs"

	"github.com/gorilla/mux"
)

type HTTP struct{ repo *Repo }

func NewHTTP(repo *Repo) *HTTP { return &HTTP{repo: repo} }

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/sedes", h.listarSedes).Methods(http.MethodGet)
	api.HandleFunc("/sedes", h.crearSede).Methods(http.MethodPost)
	api.HandleFunc("/sedes/{id}", h.obtenerSede).Methods(http.MethodGet)
	api.HandleFunc("/sedes/{id}", h.actualizarSede).Methods(http.MethodPut, http.MethodPatch)
	api.HandleFunc("/sedes/{id}", h.eliminarSede).Methods(http.MethodDelete)

	api.HandleFunc("/servicios", h.listarServicios).Methods(http.MethodGet)
	api.HandleFunc("/servicios", h.crearServicio).Methods(http.MethodPost)
	api.HandleFunc("/servicios/{id}", h.actualizarServicio).Methods(http.MethodPut, http.MethodPatch)
	api.HandleFunc("/servicios/{id}", h.eliminarServicio).Methods(http.MethodDelete)
}

func escribirError(w http.ResponseWriter, err error) {
	var ve *inventory.ValidationError
	switch {
	case errors.As(err, &ve):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": ve.Message, "field": ve.Field})
	case errors.Is(err, inventory.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, inventory.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		logs.Logger.WithError(err).Error("sedes: error interno")
		http.Error(w, "error interno del servidor", http.StatusInternalServerError)
	}
}

func idDeRuta(r *http.Request) (uint, bool) {
	idU, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || idU == 0 {
		return 0, false
	}
	return uint(idU), true
}

func (h *HTTP) listarSedes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ss, err := h.repo.ListarSedes()
	if err != nil {
		escribirError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(ss)
}

func (h *HTTP) obtenerSede(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, ok := idDeRuta(r)
	if !ok {
		http.Error(w, "id inválido", http.StatusBadRequest)
		return
	}
	s, err := h.repo.ObtenerSede(id)
	if err != nil {
		escribirError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(s)
}

func (h *HTTP) crearSede(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in SedeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "json inválido", http.StatusBadRequest)
		return
	}
	s, err := h.repo.GuardarSede(0, in)
	if err != nil {
		escribirError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(s)
}

func (h *HTTP) actualizarSede(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, ok := idDeRuta(r)
	if !ok {
		http.Error(w, "id inválido", http.StatusBadRequest)
		return
	}
	var in SedeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "json inválido", http.StatusBadRequest)
		return
	}
	s, err := h.repo.GuardarSede(id, in)
	if err != nil {
		escribirError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(s)
}

func (h *HTTP) eliminarSede(w http.ResponseWriter, r *http.Request) {
	id, ok := idDeRuta(r)
	if !ok {
		http.Error(w, "id inválido", http.StatusBadRequest)
		return
	}
	if err := h.repo.EliminarSede(id); err != nil {
		escribirError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) listarServicios(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ss, err := h.repo.ListarServicios()
	if err != nil {
		escribirError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(ss)
}

func (h *HTTP) crearServicio(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in ServicioInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "json inválido", http.StatusBadRequest)
		return
	}
	s, err := h.repo.GuardarServicio(0, in)
	if err != nil {
		escribirError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(s)
}

func (h *HTTP) actualizarServicio(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, ok := idDeRuta(r)
	if !ok {
		http.Error(w, "id inválido", http.StatusBadRequest)
		return
	}
	var in ServicioInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "json inválido", http.StatusBadRequest)
		return
	}
	s, err := h.repo.GuardarServicio(id, in)
	if err != nil {
		escribirError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(s)
}

func (h *HTTP) eliminarServicio(w http.ResponseWriter, r *http.Request) {
	id, ok := idDeRuta(r)
	if !ok {
		http.Error(w, "id inválido", http.StatusBadRequest)
		return
	}
	if err := h.repo.EliminarServicio(id); err != nil {
		escribirError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
