package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"inventario/internal/inventory"
	"inventario/internal/logs"
	"inventario/internal/middleware"

	"github.com/gorilla/mux"
)

type HTTP struct{ svc *Service }

func NewHTTP(svc *Service) *HTTP { return &HTTP{svc: svc} }

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", h.refresh).Methods(http.MethodPost)
	api.HandleFunc("/auth/validate", h.validate).Methods(http.MethodGet)

	api.HandleFunc("/usuarios", h.registrar).Methods(http.MethodPost)
	api.HandleFunc("/usuarios", h.listar).Methods(http.MethodGet)
}

// Middleware valida el Bearer token y deja el id del actor en el
// contexto. Las rutas de auth y health quedan abiertas.
func (h *HTTP) Middleware(next http.Handler) http.Handler {
	abiertas := map[string]bool{
		"/api/v1/auth/login":   true,
		"/api/v1/auth/refresh": true,
		"/healthz":             true,
		"/readyz":              true,
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if abiertas[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || token == r.Header.Get("Authorization") {
			http.Error(w, "token requerido", http.StatusUnauthorized)
			return
		}
		claims, err := h.svc.Validar(token, "access")
		if err != nil {
			http.Error(w, "token inválido o expirado", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), claims.UserID)))
	})
}

func (h *HTTP) login(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
		SedeID   *uint  `json:"sede_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Username == "" || in.Password == "" {
		http.Error(w, "json inválido (requiere username y password)", http.StatusBadRequest)
		return
	}
	pair, err := h.svc.Login(in.Username, in.Password, in.SedeID)
	if err != nil {
		var ve *inventory.ValidationError
		switch {
		case errors.Is(err, ErrCredenciales):
			http.Error(w, err.Error(), http.StatusUnauthorized)
		case errors.As(err, &ve):
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": ve.Message, "field": ve.Field})
		default:
			logs.Logger.WithError(err).Error("auth: error interno")
			http.Error(w, "error interno del servidor", http.StatusInternalServerError)
		}
		return
	}
	_ = json.NewEncoder(w).Encode(pair)
}

func (h *HTTP) refresh(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Refresh == "" {
		http.Error(w, "json inválido (requiere refresh)", http.StatusBadRequest)
		return
	}
	access, err := h.svc.Refrescar(in.Refresh)
	if err != nil {
		http.Error(w, "refresh inválido o expirado", http.StatusUnauthorized)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"access": access})
}

func (h *HTTP) validate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	claims, err := h.svc.Validar(token, "access")
	if err != nil {
		http.Error(w, "token inválido o expirado", http.StatusUnauthorized)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"valid": true, "uid": claims.UserID, "rol": claims.Rol, "sede": claims.SedeID,
	})
}

func (h *HTTP) registrar(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in RegistroInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "json inválido", http.StatusBadRequest)
		return
	}
	u, err := h.svc.Registrar(in)
	if err != nil {
		var ve *inventory.ValidationError
		if errors.As(err, &ve) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": ve.Message, "field": ve.Field})
			return
		}
		logs.Logger.WithError(err).Error("auth: error interno")
		http.Error(w, "error interno del servidor", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(u)
}

func (h *HTTP) listar(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	us, err := h.svc.ListarUsuarios()
	if err != nil {
		logs.Logger.WithError(err).Error("auth: error interno")
		http.Error(w, "error interno del servidor", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(us)
}
