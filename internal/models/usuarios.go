package models

import (
	"time"

	"gorm.io/gorm"
)

// Roles de usuario interno.
const (
	RolAdmin       = "admin"
	RolCoordinador = "coordinador"
)

type Usuario struct {
	gorm.Model
	Username     string  `gorm:"size:150;uniqueIndex" json:"username"`
	Nombre       string  `gorm:"size:150" json:"nombre"`
	Email        string  `gorm:"size:254;uniqueIndex" json:"email"`
	Celular      string  `gorm:"size:15" json:"celular"`
	Documento    *string `gorm:"size:50;index" json:"documento"`
	Rol          string  `gorm:"size:15;default:admin" json:"rol"`
	PasswordHash string  `gorm:"size:128" json:"-"`
	Activo       bool    `gorm:"default:true" json:"is_active"`
}

// NombreCompleto — nombre para mostrar en observaciones y auditoría.
func (u *Usuario) NombreCompleto() string {
	if u == nil {
		return "Desconocido"
	}
	if u.Nombre != "" {
		return u.Nombre
	}
	return u.Username
}

type UsuarioSede struct {
	gorm.Model
	UsuarioID uint `gorm:"index"`
	SedeID    uint `gorm:"index"`
}

// UsuarioExterno — persona fuera del sistema de autenticación a la que se le
// presta un dispositivo.
type UsuarioExterno struct {
	gorm.Model
	Nombre    string `gorm:"size:150" json:"nombre"`
	Documento string `gorm:"size:50;uniqueIndex" json:"documento"`
	Correo    string `gorm:"size:254" json:"correo"`
	Telefono  string `gorm:"size:15" json:"telefono"`
	Empresa   string `gorm:"size:100" json:"empresa"`
}

// Estados de una asignación externa.
const (
	AsignacionVigente  = "VIGENTE"
	AsignacionDevuelta = "DEVUELTO"
	AsignacionVencida  = "VENCIDO"
)

// AsignacionExterna — préstamo de un dispositivo a un usuario externo.
// Un dispositivo tiene a lo sumo una asignación VIGENTE (índice parcial,
// ver db.MigrateIndicesUnicos).
type AsignacionExterna struct {
	gorm.Model
	DispositivoID    uint            `gorm:"index" json:"dispositivo"`
	Dispositivo      *Dispositivo    `json:"-"`
	UsuarioExternoID uint            `gorm:"index" json:"usuario_externo"`
	UsuarioExterno   *UsuarioExterno `json:"-"`
	Estado           string          `gorm:"size:10;default:VIGENTE" json:"estado"`
	FechaAsignacion  time.Time       `gorm:"autoCreateTime" json:"fecha_asignacion"`
	FechaDevolucion  *time.Time      `json:"fecha_devolucion"`
	Observacion      string          `gorm:"type:text" json:"observacion"`
}

// Tipos de registro de entrada/salida de una asignación.
const (
	RegistroEntrada = "ENTRADA"
	RegistroSalida  = "SALIDA"
)

// RegistroAsignacion — bitácora ENTRADA/SALIDA de préstamos; para un mismo
// dispositivo los tipos deben alternar estrictamente.
type RegistroAsignacion struct {
	gorm.Model
	AsignacionID  uint      `gorm:"index"`
	DispositivoID uint      `gorm:"index"`
	Tipo          string    `gorm:"size:10"`
	Fecha         time.Time `gorm:"autoCreateTime"`
}
