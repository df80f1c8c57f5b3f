package inventory

import (
	"encoding/json"
	"fmt"
	"time"

	"inventario/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Registrador de historial: una fila append-only por transición relevante.
// Las filas nunca se modifican; solo caen en cascada con su dispositivo.

func cambiosJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON(`{}`)
	}
	return datatypes.JSON(b)
}

// camposDispositivo flattens every audited field to its string form, the
// shape the frontend renders in the history view.
func camposDispositivo(d *models.Dispositivo) map[string]string {
	return map[string]string{
		"tipo":                  d.Tipo,
		"estado":                d.Estado,
		"marca":                 d.Marca,
		"regimen":               d.Regimen,
		"razon_social":          d.RazonSocial,
		"modelo":                d.Modelo,
		"serial":                d.Serial,
		"placa_cu":              strPtr(d.PlacaCU),
		"piso":                  strPtr(d.Piso),
		"estado_propiedad":      d.EstadoPropiedad,
		"posicion":              uintPtr(d.PosicionID),
		"sede":                  uintPtr(d.SedeID),
		"capacidad_disco_duro":  d.CapacidadDiscoDuro,
		"capacidad_memoria_ram": d.CapacidadMemoriaRAM,
		"ubicacion":             d.Ubicacion,
		"proveedor":             d.Proveedor,
		"sistema_operativo":     d.SistemaOperativo,
		"procesador":            d.Procesador,
		"estado_uso":            d.EstadoUso,
		"observaciones":         d.Observaciones,
	}
}

func strPtr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func uintPtr(p *uint) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("%d", *p)
}

// sedeNombre resolves the site-name snapshot stored on every history row.
func sedeNombre(tx *gorm.DB, d *models.Dispositivo) string {
	if d == nil || d.SedeID == nil {
		return ""
	}
	var s models.Sede
	if err := tx.First(&s, *d.SedeID).Error; err != nil {
		return ""
	}
	return s.Nombre
}

// RegistrarCreacion: toda la ficha con antes=null.
func RegistrarCreacion(tx *gorm.DB, d *models.Dispositivo, actorID *uint) error {
	cambios := map[string]map[string]any{}
	for campo, valor := range camposDispositivo(d) {
		cambios[campo] = map[string]any{"antes": nil, "despues": valor}
	}
	h := models.Historial{
		DispositivoID:     &d.ID,
		UsuarioID:         actorID,
		FechaModificacion: time.Now(),
		Cambios:           cambiosJSON(cambios),
		TipoCambio:        models.CambioCreacion,
		ModeloAfectado:    "Dispositivo",
		InstanciaID:       &d.ID,
		SedeNombre:        sedeNombre(tx, d),
	}
	return tx.Create(&h).Error
}

// RegistrarModificacion diffs the snapshot taken before any mutation against
// the final state. Writes nothing when no field changed.
func RegistrarModificacion(tx *gorm.DB, antes, despues *models.Dispositivo, actorID *uint) error {
	va, vd := camposDispositivo(antes), camposDispositivo(despues)
	cambios := map[string]map[string]any{}
	for campo, valorAntes := range va {
		if valorNuevo := vd[campo]; valorNuevo != valorAntes {
			cambios[campo] = map[string]any{"antes": valorAntes, "despues": valorNuevo}
		}
	}
	if len(cambios) == 0 {
		return nil
	}
	h := models.Historial{
		DispositivoID:     &despues.ID,
		UsuarioID:         actorID,
		FechaModificacion: time.Now(),
		Cambios:           cambiosJSON(cambios),
		TipoCambio:        models.CambioModificacion,
		ModeloAfectado:    "Dispositivo",
		InstanciaID:       &despues.ID,
		SedeNombre:        sedeNombre(tx, despues),
	}
	return tx.Create(&h).Error
}

// RegistrarMovimiento: resumen libre + id del movimiento y posiciones.
func RegistrarMovimiento(tx *gorm.DB, mov *models.Movimiento, d *models.Dispositivo, actorID *uint, tipo string) error {
	detalle := map[string]any{
		"detalle":          mov.Observacion,
		"movimiento_id":    mov.ID,
		"posicion_origen":  mov.PosicionOrigenID,
		"posicion_destino": mov.PosicionDestinoID,
	}
	h := models.Historial{
		DispositivoID:     mov.DispositivoID,
		UsuarioID:         actorID,
		FechaModificacion: time.Now(),
		Cambios:           cambiosJSON(detalle),
		TipoCambio:        tipo,
		ModeloAfectado:    "Movimiento",
		InstanciaID:       &mov.ID,
		SedeNombre:        sedeNombre(tx, d),
	}
	return tx.Create(&h).Error
}

// RegistrarReversion references both the original and the compensating
// movement so the chain can be followed from the audit log.
func RegistrarReversion(tx *gorm.DB, original, compensacion *models.Movimiento, d *models.Dispositivo, actorID *uint) error {
	detalle := map[string]any{
		"detalle":              compensacion.Observacion,
		"movimiento_original":  original.ID,
		"movimiento_reversion": compensacion.ID,
		"posicion_origen":      compensacion.PosicionOrigenID,
		"posicion_destino":     compensacion.PosicionDestinoID,
	}
	h := models.Historial{
		DispositivoID:     compensacion.DispositivoID,
		UsuarioID:         actorID,
		FechaModificacion: time.Now(),
		Cambios:           cambiosJSON(detalle),
		TipoCambio:        models.CambioReversion,
		ModeloAfectado:    "Movimiento",
		InstanciaID:       &compensacion.ID,
		SedeNombre:        sedeNombre(tx, d),
	}
	return tx.Create(&h).Error
}

// RegistrarEliminacion: fila final sin referencia al dispositivo (ya borrado).
func RegistrarEliminacion(tx *gorm.DB, d *models.Dispositivo, actorID *uint) error {
	detalle := map[string]any{
		"mensaje": "Instancia de Dispositivo eliminada",
		"valores": fmt.Sprintf("%s %s %s - %s", d.Tipo, d.Marca, d.Modelo, d.Serial),
	}
	id := d.ID
	h := models.Historial{
		UsuarioID:         actorID,
		FechaModificacion: time.Now(),
		Cambios:           cambiosJSON(detalle),
		TipoCambio:        models.CambioEliminacion,
		ModeloAfectado:    "Dispositivo",
		InstanciaID:       &id,
		SedeNombre:        sedeNombre(tx, d),
	}
	return tx.Create(&h).Error
}

// Evento — entrada genérica de historial para modelos distintos al
// dispositivo (asignaciones externas, etc.).
type Evento struct {
	DispositivoID  *uint
	ActorID        *uint
	TipoCambio     string
	ModeloAfectado string
	InstanciaID    *uint
	Detalle        map[string]any
	Dispositivo    *models.Dispositivo
}

func RegistrarEvento(tx *gorm.DB, e Evento) error {
	h := models.Historial{
		DispositivoID:     e.DispositivoID,
		UsuarioID:         e.ActorID,
		FechaModificacion: time.Now(),
		Cambios:           cambiosJSON(e.Detalle),
		TipoCambio:        e.TipoCambio,
		ModeloAfectado:    e.ModeloAfectado,
		InstanciaID:       e.InstanciaID,
		SedeNombre:        sedeNombre(tx, e.Dispositivo),
	}
	return tx.Create(&h).Error
}

// RegistrarLogin writes at most one LOGIN row per user per rolling 60s
// window; a second login inside the window is silently skipped.
func RegistrarLogin(db *gorm.DB, u *models.Usuario, sedeNombre string) error {
	haceUnMinuto := time.Now().Add(-time.Minute)
	var n int64
	if err := db.Model(&models.Historial{}).
		Where("usuario_id = ? AND tipo_cambio = ? AND fecha_modificacion >= ?",
			u.ID, models.CambioLogin, haceUnMinuto).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	h := models.Historial{
		UsuarioID:         &u.ID,
		FechaModificacion: time.Now(),
		Cambios:           cambiosJSON(map[string]string{"mensaje": "Inicio de sesión exitoso"}),
		TipoCambio:        models.CambioLogin,
		ModeloAfectado:    "Usuario",
		InstanciaID:       &u.ID,
		SedeNombre:        sedeNombre,
	}
	return db.Create(&h).Error
}
