package externos

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"inventario/internal/inventory"
	"inventario/internal/logs"
	"inventario/internal/middleware"

	"github.com/gorilla/mux"
)

type HTTP struct{ svc *Service }

func NewHTTP(svc *Service) *HTTP { return &HTTP{svc: svc} }

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/usuarios-externos", h.listarUsuarios).Methods(http.MethodGet)
	api.HandleFunc("/usuarios-externos", h.crearUsuario).Methods(http.MethodPost)
	api.HandleFunc("/usuarios-externos/{id}", h.actualizarUsuario).Methods(http.MethodPut, http.MethodPatch)

	api.HandleFunc("/asignaciones", h.listarAsignaciones).Methods(http.MethodGet)
	api.HandleFunc("/asignaciones", h.asignar).Methods(http.MethodPost)
	api.HandleFunc("/asignaciones/{id}/devolver", h.devolver).Methods(http.MethodPost)
	api.HandleFunc("/asignaciones/{id}/vencer", h.vencer).Methods(http.MethodPost)
	api.HandleFunc("/asignaciones/registros/{id}", h.registros).Methods(http.MethodGet)
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
		logs.Logger.WithError(err).Error("externos: error interno")
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

func (h *HTTP) listarUsuarios(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	us, err := h.svc.ListarUsuariosExternos()
	if err != nil {
		escribirError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(us)
}

func (h *HTTP) crearUsuario(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in UsuarioExternoInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "json inválido", http.StatusBadRequest)
		return
	}
	u, err := h.svc.GuardarUsuarioExterno(0, in)
	if err != nil {
		escribirError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(u)
}

func (h *HTTP) actualizarUsuario(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, ok := idDeRuta(r)
	if !ok {
		http.Error(w, "id inválido", http.StatusBadRequest)
		return
	}
	var in UsuarioExternoInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "json inválido", http.StatusBadRequest)
		return
	}
	u, err := h.svc.GuardarUsuarioExterno(id, in)
	if err != nil {
		escribirError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(u)
}

func (h *HTTP) listarAsignaciones(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	f := FiltroAsignaciones{Estado: r.URL.Query().Get("estado")}
	if v := r.URL.Query().Get("dispositivo"); v != "" {
		if u, err := strconv.ParseUint(v, 10, 64); err == nil {
			id := uint(u)
			f.DispositivoID = &id
		}
	}
	as, err := h.svc.ListarAsignaciones(f)
	if err != nil {
		escribirError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(as)
}

func (h *HTTP) asignar(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in AsignarInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.DispositivoID == 0 || in.UsuarioExternoID == 0 {
		http.Error(w, "json inválido (requiere dispositivo y usuario_externo)", http.StatusBadRequest)
		return
	}
	a, err := h.svc.Asignar(in, middleware.UserID(r.Context()))
	if err != nil {
		escribirError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(a)
}

func (h *HTTP) devolver(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, ok := idDeRuta(r)
	if !ok {
		http.Error(w, "id inválido", http.StatusBadRequest)
		return
	}
	a, err := h.svc.Devolver(id, middleware.UserID(r.Context()))
	if err != nil {
		escribirError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(a)
}

func (h *HTTP) vencer(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, ok := idDeRuta(r)
	if !ok {
		http.Error(w, "id inválido", http.StatusBadRequest)
		return
	}
	a, err := h.svc.Vencer(id, middleware.UserID(r.Context()))
	if err != nil {
		escribirError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(a)
}

func (h *HTTP) registros(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, ok := idDeRuta(r)
	if !ok {
		http.Error(w, "id inválido", http.StatusBadRequest)
		return
	}
	regs, err := h.svc.ListarRegistros(id)
	if err != nil {
		escribirError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(regs)
}
