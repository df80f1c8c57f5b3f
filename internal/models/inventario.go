package models

import (
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MaxDispositivos — cupo máximo de dispositivos por posición.
const MaxDispositivos = 5

type Sede struct {
	gorm.Model
	Nombre    string `gorm:"size:100;uniqueIndex" json:"nombre"`
	Ciudad    string `gorm:"size:100" json:"ciudad"`
	Direccion string `gorm:"type:text" json:"direccion"`
}

type Servicio struct {
	gorm.Model
	Nombre          string `gorm:"size:100" json:"nombre"`
	CodigoAnalitico string `gorm:"size:255" json:"codigo_analitico"`
	Color           string `gorm:"size:20;default:#FFFFFF" json:"color"`
}

type ServicioSede struct {
	gorm.Model
	ServicioID uint `gorm:"index"`
	SedeID     uint `gorm:"index"`
}

// Estados de una posición.
const (
	PosicionDisponible = "disponible"
	PosicionOcupada    = "ocupado"
	PosicionReservada  = "reservado"
	PosicionInactiva   = "inactivo"
)

// Posicion — celda de la grilla física de una sede/piso.
type Posicion struct {
	gorm.Model
	Nombre        string         `gorm:"size:100" json:"nombre"`
	Tipo          string         `gorm:"size:50" json:"tipo"`
	Estado        string         `gorm:"size:50;default:disponible" json:"estado"`
	Detalles      string         `gorm:"type:text" json:"detalles"`
	Fila          int            `json:"fila"`
	Columna       string         `gorm:"size:5" json:"columna"`
	Color         string         `gorm:"size:20;default:#FFFFFF" json:"color"`
	ColorFuente   string         `gorm:"size:20;default:#000000" json:"colorFuente"`
	ColorOriginal string         `gorm:"size:50" json:"colorOriginal"`
	Borde         bool           `gorm:"default:true" json:"borde"`
	BordeDoble    bool           `json:"bordeDoble"`
	BordeDetalle  datatypes.JSON `json:"bordeDetalle"`
	Piso          string         `gorm:"size:50;index" json:"piso"`
	SedeID        *uint          `gorm:"index" json:"sede"`
	Sede          *Sede          `json:"-"`
	ServicioID    *uint          `gorm:"index" json:"servicio"`
	Servicio      *Servicio      `json:"-"`
	MergedCells   datatypes.JSON `json:"mergedCells"`
}

// PosicionDispositivo — fila de la relación posición↔dispositivo. La relación
// es N:M en el esquema pero el sincronizador la mantiene como función
// (un dispositivo pertenece a lo sumo a una posición).
type PosicionDispositivo struct {
	gorm.Model
	PosicionID    uint `gorm:"index:idx_pos_disp,priority:1"`
	DispositivoID uint `gorm:"index:idx_pos_disp,priority:2"`
}

// Tipos de dispositivo.
const (
	TipoComputador = "COMPUTADOR"
	TipoDesktop    = "DESKTOP"
	TipoMonitor    = "MONITOR"
	TipoTablet     = "TABLET"
	TipoMovil      = "MOVIL"
	TipoProDisplay = "HP_PRODISPLAY_P201"
	TipoPortatil   = "PORTATIL"
	TipoTodoEnUno  = "TODO_EN_UNO"
)

// Estados físicos de un dispositivo.
const (
	EstadoBueno         = "BUENO"
	EstadoBodegaCN      = "BODEGA_CN"
	EstadoBodega        = "BODEGA"
	EstadoMala          = "MALA"
	EstadoMalo          = "MALO"
	EstadoPendienteBaja = "PENDIENTE_BAJA"
	EstadoPerdidoRobado = "PERDIDO_ROBADO"
	EstadoReparar       = "REPARAR"
	EstadoRepararBaja   = "REPARAR_BAJA"
	EstadoSede          = "SEDE"
	EstadoStock         = "STOCK"
)

// Estado de uso.
const (
	UsoDisponible   = "DISPONIBLE"
	UsoEnUso        = "EN_USO"
	UsoInhabilitado = "INHABILITADO"
)

// Categorías de ubicación (para movimientos sin posición concreta).
const (
	UbicacionCasa    = "CASA"
	UbicacionCliente = "CLIENTE"
	UbicacionSede    = "SEDE"
	UbicacionOtro    = "OTRO"
)

type Dispositivo struct {
	gorm.Model
	Tipo                string    `gorm:"size:20" json:"tipo"`
	Estado              string    `gorm:"size:18" json:"estado"`
	Marca               string    `gorm:"size:20;index" json:"marca"`
	Regimen             string    `gorm:"size:100" json:"regimen"`
	RazonSocial         string    `gorm:"size:100" json:"razon_social"`
	Modelo              string    `gorm:"size:50;index" json:"modelo"`
	Serial              string    `gorm:"size:50;index" json:"serial"`
	PlacaCU             *string   `gorm:"size:50;index" json:"placa_cu"`
	Piso                *string   `gorm:"size:10" json:"piso"`
	EstadoPropiedad     string    `gorm:"size:10" json:"estado_propiedad"`
	PosicionID          *uint     `gorm:"index" json:"posicion"`
	Posicion            *Posicion `json:"-"`
	SedeID              *uint     `gorm:"index" json:"sede"`
	Sede                *Sede     `json:"-"`
	CapacidadDiscoDuro  string    `gorm:"size:10" json:"capacidad_disco_duro"`
	CapacidadMemoriaRAM string    `gorm:"size:10;column:capacidad_memoria_ram" json:"capacidad_memoria_ram"`
	Ubicacion           string    `gorm:"size:10" json:"ubicacion"`
	Proveedor           string    `gorm:"size:100" json:"proveedor"`
	SistemaOperativo    string    `gorm:"size:20" json:"sistema_operativo"`
	Procesador          string    `gorm:"size:100" json:"procesador"`
	EstadoUso           string    `gorm:"size:100" json:"estado_uso"`
	Observaciones       string    `gorm:"size:500" json:"observaciones"`
}

// EsOperativo — en uso y en buen estado.
func (d *Dispositivo) EsOperativo() bool {
	return d.EstadoUso == UsoEnUso && d.Estado == EstadoBueno
}

// MarshalJSON expone is_operativo como campo derivado.
func (d Dispositivo) MarshalJSON() ([]byte, error) {
	type alias Dispositivo
	return json.Marshal(struct {
		alias
		EsOperativo bool `json:"is_operativo"`
	}{alias(d), d.EsOperativo()})
}
