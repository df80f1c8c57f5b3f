package auth

import (
	"errors"
	"fmt"
	"time"

	"inventario/internal/inventory"
	"inventario/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var ErrCredenciales = errors.New("credenciales inválidas")

// Service autentica usuarios internos y emite tokens JWT.
type Service struct {
	db         *gorm.DB
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewService(db *gorm.DB, secret string, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{db: db, secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL}
}

type Claims struct {
	UserID uint   `json:"uid"`
	Rol    string `json:"rol"`
	SedeID *uint  `json:"sede,omitempty"`
	Tipo   string `json:"typ"`
	jwt.RegisteredClaims
}

func (s *Service) emitir(u *models.Usuario, sedeID *uint, tipo string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: u.ID,
		Rol:    u.Rol,
		SedeID: sedeID,
		Tipo:   tipo,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Username,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Validar parses and verifies a token of the given type ("access"/"refresh").
func (s *Service) Validar(token, tipo string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("método de firma inesperado: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Tipo != tipo {
		return nil, ErrCredenciales
	}
	return claims, nil
}

type TokenPair struct {
	Access  string          `json:"access"`
	Refresh string          `json:"refresh"`
	Usuario *models.Usuario `json:"usuario"`
}

// Login verifica usuario, contraseña y pertenencia a la sede elegida,
// registra el acceso en el historial y emite el par de tokens.
func (s *Service) Login(username, password string, sedeID *uint) (*TokenPair, error) {
	var u models.Usuario
	if err := s.db.Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredenciales
		}
		return nil, err
	}
	if !u.Activo {
		return nil, ErrCredenciales
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrCredenciales
	}

	var sedeNombre string
	if sedeID != nil {
		var pertenece int64
		if err := s.db.Model(&models.UsuarioSede{}).
			Where("usuario_id = ? AND sede_id = ?", u.ID, *sedeID).
			Count(&pertenece).Error; err != nil {
			return nil, err
		}
		if pertenece == 0 && u.Rol != models.RolAdmin {
			return nil, &inventory.ValidationError{Field: "sede_id", Message: "el usuario no pertenece a esa sede"}
		}
		var sede models.Sede
		if err := s.db.First(&sede, *sedeID).Error; err == nil {
			sedeNombre = sede.Nombre
		}
	}

	if err := inventory.RegistrarLogin(s.db, &u, sedeNombre); err != nil {
		return nil, err
	}

	access, err := s.emitir(&u, sedeID, "access", s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.emitir(&u, sedeID, "refresh", s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh, Usuario: &u}, nil
}

// Refrescar emite un nuevo access token a partir de un refresh válido.
func (s *Service) Refrescar(refresh string) (string, error) {
	claims, err := s.Validar(refresh, "refresh")
	if err != nil {
		return "", ErrCredenciales
	}
	var u models.Usuario
	if err := s.db.First(&u, claims.UserID).Error; err != nil || !u.Activo {
		return "", ErrCredenciales
	}
	return s.emitir(&u, claims.SedeID, "access", s.accessTTL)
}

type RegistroInput struct {
	Username string `json:"username"`
	Nombre   string `json:"nombre"`
	Email    string `json:"email"`
	Celular  string `json:"celular"`
	Password string `json:"password"`
	Rol      string `json:"rol"`
	Sedes    []uint `json:"sedes"`
}

// Registrar crea un usuario interno con sus sedes asociadas.
func (s *Service) Registrar(in RegistroInput) (*models.Usuario, error) {
	if in.Username == "" {
		return nil, &inventory.ValidationError{Field: "username", Message: "el username es obligatorio"}
	}
	if len(in.Password) < 8 {
		return nil, &inventory.ValidationError{Field: "password", Message: "la contraseña debe tener al menos 8 caracteres"}
	}
	if in.Rol == "" {
		in.Rol = models.RolCoordinador
	}
	if in.Rol != models.RolAdmin && in.Rol != models.RolCoordinador {
		return nil, &inventory.ValidationError{Field: "rol", Message: "rol desconocido"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := models.Usuario{
		Username:     in.Username,
		Nombre:       in.Nombre,
		Email:        in.Email,
		Celular:      in.Celular,
		Rol:          in.Rol,
		PasswordHash: string(hash),
		Activo:       true,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&u).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &inventory.ValidationError{Field: "username", Message: "username o email ya registrado"}
			}
			return err
		}
		for _, sedeID := range in.Sedes {
			var n int64
			if err := tx.Model(&models.Sede{}).Where("id = ?", sedeID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return &inventory.ValidationError{Field: "sedes", Message: "la sede referida no existe"}
			}
			if err := tx.Create(&models.UsuarioSede{UsuarioID: u.ID, SedeID: sedeID}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Service) ListarUsuarios() ([]models.Usuario, error) {
	var out []models.Usuario
	err := s.db.Order("username").Find(&out).Error
	return out, err
}

// SedesDeUsuario lists the sedes a user can log into.
func (s *Service) SedesDeUsuario(usuarioID uint) ([]models.Sede, error) {
	var out []models.Sede
	err := s.db.
		Joins("JOIN usuario_sedes ON usuario_sedes.sede_id = sedes.id AND usuario_sedes.deleted_at IS NULL").
		Where("usuario_sedes.usuario_id = ?", usuarioID).
		Order("sedes.nombre").
		Find(&out).Error
	return out, err
}
