package inventory

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"inventario/internal/logs"
	"inventario/internal/middleware"

	"github.com/gorilla/mux"
)

type HTTP struct {
	svc  *Service
	repo *Repo
}

func NewHTTP(svc *Service, repo *Repo) *HTTP { return &HTTP{svc: svc, repo: repo} }

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	// dispositivos
	api.HandleFunc("/dispositivos", h.listarDispositivos).Methods(http.MethodGet)
	api.HandleFunc("/dispositivos", h.crearDispositivo).Methods(http.MethodPost)
	api.HandleFunc("/dispositivos/{id}", h.obtenerDispositivo).Methods(http.MethodGet)
	api.HandleFunc("/dispositivos/{id}", h.actualizarDispositivo).Methods(http.MethodPut, http.MethodPatch)
	api.HandleFunc("/dispositivos/{id}", h.eliminarDispositivo).Methods(http.MethodDelete)

	// posiciones
	api.HandleFunc("/posiciones", h.listarPosiciones).Methods(http.MethodGet)
	api.HandleFunc("/posiciones", h.crearPosicion).Methods(http.MethodPost)
	api.HandleFunc("/posiciones/{id}", h.obtenerPosicion).Methods(http.MethodGet)
	api.HandleFunc("/posiciones/{id}", h.actualizarPosicion).Methods(http.MethodPut, http.MethodPatch)
	api.HandleFunc("/posiciones/{id}", h.eliminarPosicion).Methods(http.MethodDelete)

	// movimientos
	api.HandleFunc("/movimientos", h.listarMovimientos).Methods(http.MethodGet)
	api.HandleFunc("/movimientos", h.registrarMovimiento).Methods(http.MethodPost)
	api.HandleFunc("/movimientos/{id}", h.obtenerMovimiento).Methods(http.MethodGet)
	api.HandleFunc("/movimientos/{id}/confirmar", h.confirmarMovimiento).Methods(http.MethodPost)
	api.HandleFunc("/movimientos/{id}/revertir", h.revertirMovimiento).Methods(http.MethodPost)

	// historial y tablero
	api.HandleFunc("/historial", h.listarHistorial).Methods(http.MethodGet)
	api.HandleFunc("/dashboard", h.tablero).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/sedes", h.porSede).Methods(http.MethodGet)
}

func escribirError(w http.ResponseWriter, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": ve.Message, "field": ve.Field})
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		logs.Logger.WithError(err).Error("inventory: error interno")
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

func uintQuery(r *http.Request, clave string) *uint {
	v := r.URL.Query().Get(clave)
	if v == "" {
		return nil
	}
	u, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return nil
	}
	id := uint(u)
	return &id
}

// ── dispositivos ────────────────────────────────────────────

func (h *HTTP) listarDispositivos(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ds, err := h.repo.ListarDispositivos(uintQuery(r, "sede"))
	if err != nil {
		escribirError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"data": ds, "count": len(ds)})
}

func (h *HTTP) crearDispositivo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in DispositivoInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "json inválido", http.StatusBadRequest)
		return
	}
	d, err := h.svc.CrearDispositivo(in, middleware.UserID(r.Context()))
	if err != nil {
		escribirError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(d)
}

func (h *HTTP) obtenerDispositivo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, ok := idDeRuta(r)
	if !ok {
		http.Error(w, "id inválido", http.StatusBadRequest)
		return
	}
	d, err := h.repo.ObtenerDispositivo(id)
	if err != nil {
		escribirError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(d)
}

func (h *HTTP) actualizarDispositivo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, ok := idDeRuta(r)
	if !ok {
		http.Error(w, "id inválido", http.StatusBadRequest)
		return
	}
	var in DispositivoInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "json inválido", http.StatusBadRequest)
		return
	}
	d, err := h.svc.ActualizarDispositivo(id, in, middleware.UserID(r.Context()))
	if err != nil {
		escribirError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(d)
}

func (h *HTTP) eliminarDispositivo(w http.ResponseWriter, r *http.Request) {
	id, ok := idDeRuta(r)
	if !ok {
		http.Error(w, "id inválido", http.StatusBadRequest)
		return
	}
	if err := h.svc.EliminarDispositivo(id, middleware.UserID(r.Context())); err != nil {
		escribirError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── posiciones ─────────────────────────────────────────────

func (h *HTTP) listarPosiciones(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ps, err := h.repo.ListarPosiciones(uintQuery(r, "sede"), r.URL.Query().Get("piso"))
	if err != nil {
		escribirError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(ps)
}

func (h *HTTP) crearPosicion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in PosicionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "json inválido", http.StatusBadRequest)
		return
	}
	p, err := h.svc.GuardarPosicion(0, in, middleware.UserID(r.Context()))
	if err != nil {
		escribirError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(p)
}

func (h *HTTP) obtenerPosicion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, ok := idDeRuta(r)
	if !ok {
		http.Error(w, "id inválido", http.StatusBadRequest)
		return
	}
	p, miembros, err := h.repo.ObtenerPosicion(id)
	if err != nil {
		escribirError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"posicion": p, "dispositivos": miembros})
}

func (h *HTTP) actualizarPosicion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, ok := idDeRuta(r)
	if !ok {
		http.Error(w, "id inválido", http.StatusBadRequest)
		return
	}
	var in PosicionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "json inválido", http.StatusBadRequest)
		return
	}
	p, err := h.svc.GuardarPosicion(id, in, middleware.UserID(r.Context()))
	if err != nil {
		escribirError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(p)
}

func (h *HTTP) eliminarPosicion(w http.ResponseWriter, r *http.Request) {
	id, ok := idDeRuta(r)
	if !ok {
		http.Error(w, "id inválido", http.StatusBadRequest)
		return
	}
	if err := h.svc.EliminarPosicion(id); err != nil {
		escribirError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── movimientos ────────────────────────────────────────────

func (h *HTTP) listarMovimientos(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	ms, err := h.repo.ListarMovimientos(uintQuery(r, "dispositivo"), limit, offset)
	if err != nil {
		escribirError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(ms)
}

func (h *HTTP) obtenerMovimiento(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, ok := idDeRuta(r)
	if !ok {
		http.Error(w, "id inválido", http.StatusBadRequest)
		return
	}
	m, err := h.repo.ObtenerMovimiento(id)
	if err != nil {
		escribirError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(m)
}

func (h *HTTP) registrarMovimiento(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in struct {
		Dispositivo     uint   `json:"dispositivo"`
		PosicionDestino *uint  `json:"posicion_destino"`
		Ubicacion       string `json:"ubicacion_destino"`
		Modo            string `json:"modo"`
		Observacion     string `json:"observacion"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Dispositivo == 0 {
		http.Error(w, "json inválido (requiere dispositivo)", http.StatusBadRequest)
		return
	}
	m, err := h.svc.RegistrarMovimiento(in.Dispositivo,
		Destino{PosicionID: in.PosicionDestino, Ubicacion: in.Ubicacion},
		middleware.UserID(r.Context()), in.Modo, in.Observacion)
	if err != nil {
		escribirError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(m)
}

func (h *HTTP) confirmarMovimiento(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, ok := idDeRuta(r)
	if !ok {
		http.Error(w, "id inválido", http.StatusBadRequest)
		return
	}
	m, err := h.svc.Confirmar(id, middleware.UserID(r.Context()))
	if err != nil {
		escribirError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(m)
}

func (h *HTTP) revertirMovimiento(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, ok := idDeRuta(r)
	if !ok {
		http.Error(w, "id inválido", http.StatusBadRequest)
		return
	}
	m, err := h.svc.Revertir(id, middleware.UserID(r.Context()))
	if err != nil {
		escribirError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(m)
}

// ── historial y tablero ────────────────────────────────────

func (h *HTTP) listarHistorial(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	f := FiltroHistorial{
		TipoCambio:    r.URL.Query().Get("tipo_cambio"),
		DispositivoID: uintQuery(r, "dispositivo"),
	}
	if v := r.URL.Query().Get("fecha_inicio"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			f.FechaInicio = &t
		}
	}
	if v := r.URL.Query().Get("fecha_fin"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			f.FechaFin = &t
		}
	}
	f.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	f.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	hs, total, err := h.repo.ListarHistorial(f)
	if err != nil {
		escribirError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"data": hs, "count": total})
}

func (h *HTTP) tablero(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	cards, err := h.repo.Tablero(uintQuery(r, "sede"))
	if err != nil {
		escribirError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"cardsData": cards})
}

func (h *HTTP) porSede(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	data, err := h.repo.DispositivosPorSede()
	if err != nil {
		escribirError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}
