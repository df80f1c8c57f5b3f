package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Tipos de cambio del historial.
const (
	CambioCreacion     = "CREACION"
	CambioModificacion = "MODIFICACION"
	CambioAsignacion   = "ASIGNACION"
	CambioMovimiento   = "MOVIMIENTO"
	CambioLogin        = "LOGIN"
	CambioOtro         = "OTRO"
	CambioEliminacion  = "ELIMINACION"
	CambioReversion    = "REVERSION"
)

// Historial — entrada append-only del registro de auditoría. Nunca se
// modifica; solo se elimina en cascada con su dispositivo.
type Historial struct {
	gorm.Model
	DispositivoID     *uint          `gorm:"index" json:"dispositivo"`
	Dispositivo       *Dispositivo   `json:"-"`
	UsuarioID         *uint          `gorm:"index" json:"usuario"`
	Usuario           *Usuario       `json:"-"`
	FechaModificacion time.Time      `gorm:"index" json:"fecha_modificacion"`
	Cambios           datatypes.JSON `json:"cambios"`
	TipoCambio        string         `gorm:"size:20;index;default:OTRO" json:"tipo_cambio"`
	ModeloAfectado    string         `gorm:"size:100" json:"modelo_afectado"`
	InstanciaID       *uint          `json:"instancia_id"`
	SedeNombre        string         `gorm:"size:100" json:"sede_nombre"`
}

// Movimiento — transición de un dispositivo entre posiciones o categorías de
// ubicación. Inmutable salvo la confirmación diferida.
type Movimiento struct {
	gorm.Model
	DispositivoID     *uint        `gorm:"index" json:"dispositivo"`
	Dispositivo       *Dispositivo `json:"-"`
	EncargadoID       *uint        `gorm:"index" json:"encargado"`
	Encargado         *Usuario     `json:"-"`
	FechaMovimiento   time.Time    `gorm:"autoCreateTime" json:"fecha_movimiento"`
	PosicionOrigenID  *uint        `gorm:"index" json:"posicion_origen"`
	PosicionOrigen    *Posicion    `json:"-"`
	PosicionDestinoID *uint        `gorm:"index" json:"posicion_destino"`
	PosicionDestino   *Posicion    `json:"-"`
	UbicacionOrigen   string       `gorm:"size:50" json:"ubicacion_origen"`
	UbicacionDestino  string       `gorm:"size:50" json:"ubicacion_destino"`
	SedeID            *uint        `gorm:"index" json:"sede"`
	Observacion       string       `gorm:"type:text" json:"observacion"`
	Confirmado        bool         `gorm:"default:false" json:"confirmado"`
	FechaConfirmacion *time.Time   `json:"fecha_confirmacion"`
}
