package inventory

import (
	"errors"
	"fmt"
	"time"

	"inventario/internal/models"

	"gorm.io/gorm"
)

// Modos de registro de un movimiento.
const (
	ModoInmediato = "inmediato" // mueve y registra en la misma transacción
	ModoPropuesto = "propuesto" // registra sin mover; el traslado ocurre al confirmar
)

var etiquetasUbicacion = map[string]string{
	models.UbicacionCasa:    "Casa",
	models.UbicacionCliente: "Cliente",
	models.UbicacionSede:    "Sede",
	models.UbicacionOtro:    "Otro",
}

// Destino — destino de un movimiento: una posición concreta o una categoría
// de ubicación.
type Destino struct {
	PosicionID *uint  `json:"posicion"`
	Ubicacion  string `json:"ubicacion"`
}

func etiquetaPosicion(tx *gorm.DB, posID *uint, ubicacion string) string {
	if posID != nil {
		var p models.Posicion
		if err := tx.First(&p, *posID).Error; err == nil && p.Nombre != "" {
			return p.Nombre
		}
		return fmt.Sprintf("posición %d", *posID)
	}
	if e, ok := etiquetasUbicacion[ubicacion]; ok {
		return e
	}
	return "Desconocido"
}

func nombreActor(tx *gorm.DB, actorID *uint) string {
	if actorID == nil {
		return "Desconocido"
	}
	var u models.Usuario
	if err := tx.First(&u, *actorID).Error; err != nil {
		return "Desconocido"
	}
	return u.NombreCompleto()
}

// observacionAuto builds the human-readable log line when the caller didn't
// supply one. Purely descriptive, never parsed back.
func observacionAuto(tx *gorm.DB, d *models.Dispositivo, m *models.Movimiento) string {
	return fmt.Sprintf("Dispositivo %s (%s %s) movido de %s a %s por %s.",
		d.Serial, d.Marca, d.Modelo,
		etiquetaPosicion(tx, m.PosicionOrigenID, m.UbicacionOrigen),
		etiquetaPosicion(tx, m.PosicionDestinoID, m.UbicacionDestino),
		nombreActor(tx, m.EncargadoID))
}

// RegistrarMovimiento records a placement transition for the device. In
// immediate mode the position swap happens here; in proposed mode only the
// row is written (confirmado=false) and the swap waits for Confirmar.
func (s *Service) RegistrarMovimiento(dispositivoID uint, destino Destino, actorID *uint, modo string, observacion string) (*models.Movimiento, error) {
	if modo == "" {
		modo = ModoInmediato
	}
	if modo != ModoInmediato && modo != ModoPropuesto {
		return nil, invalid("modo", "modo de movimiento no válido")
	}

	var mov *models.Movimiento
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var d models.Dispositivo
		if err := tx.First(&d, dispositivoID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		draft := MovimientoDraft{
			DispositivoID:     d.ID,
			PosicionOrigenID:  d.PosicionID,
			PosicionDestinoID: destino.PosicionID,
			UbicacionDestino:  destino.Ubicacion,
		}
		if d.PosicionID == nil {
			draft.UbicacionOrigen = d.Ubicacion
			if draft.UbicacionOrigen == "" {
				draft.UbicacionOrigen = models.UbicacionOtro
			}
		}
		if err := ValidarMovimiento(tx, &draft); err != nil {
			return err
		}

		m := models.Movimiento{
			DispositivoID:     &d.ID,
			EncargadoID:       actorID,
			PosicionOrigenID:  draft.PosicionOrigenID,
			UbicacionOrigen:   draft.UbicacionOrigen,
			PosicionDestinoID: draft.PosicionDestinoID,
			UbicacionDestino:  draft.UbicacionDestino,
			SedeID:            d.SedeID,
			Observacion:       observacion,
		}
		if m.Observacion == "" {
			m.Observacion = observacionAuto(tx, &d, &m)
		}

		if modo == ModoInmediato {
			var nueva *models.Posicion
			if destino.PosicionID != nil {
				var p models.Posicion
				if err := tx.First(&p, *destino.PosicionID).Error; err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return invalid("posicion", "la posición destino no existe")
					}
					return err
				}
				nueva = &p
			}
			if err := Reasignar(tx, &d, nueva, actorID); err != nil {
				return err
			}
			m.SedeID = d.SedeID
			ahora := time.Now()
			m.Confirmado = true
			m.FechaConfirmacion = &ahora
		}

		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		if modo == ModoInmediato {
			if err := RegistrarMovimiento(tx, &m, &d, actorID, models.CambioMovimiento); err != nil {
				return err
			}
		}
		mov = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mov, nil
}

// Confirmar applies a proposed movement: the swap happens now, not at
// creation time. Fails on an already confirmed movement or a full
// destination.
func (s *Service) Confirmar(movimientoID uint, actorID *uint) (*models.Movimiento, error) {
	var mov *models.Movimiento
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var m models.Movimiento
		if err := tx.First(&m, movimientoID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if m.Confirmado {
			return ErrConflict
		}
		if m.DispositivoID == nil {
			return invalid("dispositivo", "el movimiento no referencia un dispositivo")
		}
		var d models.Dispositivo
		if err := tx.First(&d, *m.DispositivoID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var nueva *models.Posicion
		if m.PosicionDestinoID != nil {
			p, err := bloquearPosicion(tx, *m.PosicionDestinoID)
			if err != nil {
				return err
			}
			yaEsta, err := perteneceAPosicion(tx, d.ID, p.ID)
			if err != nil {
				return err
			}
			if !yaEsta {
				n, err := contarDispositivos(tx, p.ID)
				if err != nil {
					return err
				}
				if n >= models.MaxDispositivos {
					return invalid("posicion", fmt.Sprintf("la posición destino ya tiene %d dispositivos", models.MaxDispositivos))
				}
			}
			nueva = p
		}

		if err := Reasignar(tx, &d, nueva, actorID); err != nil {
			return err
		}

		ahora := time.Now()
		m.Confirmado = true
		m.FechaConfirmacion = &ahora
		if err := tx.Model(&m).Select("confirmado", "fecha_confirmacion").
			Updates(map[string]any{"confirmado": true, "fecha_confirmacion": ahora}).Error; err != nil {
			return err
		}
		if err := RegistrarMovimiento(tx, &m, &d, actorID, models.CambioMovimiento); err != nil {
			return err
		}
		mov = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mov, nil
}

// Revertir creates a compensating movement with origin/destination swapped
// and moves the device back. Reverting a reversal is just another reversal.
func (s *Service) Revertir(movimientoID uint, actorID *uint) (*models.Movimiento, error) {
	var mov *models.Movimiento
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var m models.Movimiento
		if err := tx.First(&m, movimientoID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if m.PosicionDestinoID == nil {
			return invalid("posicion_destino", "el movimiento no tiene posición destino que revertir")
		}
		if m.DispositivoID == nil {
			return invalid("dispositivo", "el movimiento no referencia un dispositivo")
		}
		var d models.Dispositivo
		if err := tx.First(&d, *m.DispositivoID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var origen *models.Posicion
		if m.PosicionOrigenID != nil {
			var p models.Posicion
			if err := tx.First(&p, *m.PosicionOrigenID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return invalid("posicion_origen", "la posición de origen ya no existe")
				}
				return err
			}
			origen = &p
		}

		if err := Reasignar(tx, &d, origen, actorID); err != nil {
			return err
		}

		ahora := time.Now()
		comp := models.Movimiento{
			DispositivoID:     m.DispositivoID,
			EncargadoID:       actorID,
			PosicionOrigenID:  m.PosicionDestinoID,
			UbicacionOrigen:   m.UbicacionDestino,
			PosicionDestinoID: m.PosicionOrigenID,
			UbicacionDestino:  m.UbicacionOrigen,
			SedeID:            d.SedeID,
			Observacion:       fmt.Sprintf("Reversión del movimiento %d.", m.ID),
			Confirmado:        true,
			FechaConfirmacion: &ahora,
		}
		if err := tx.Create(&comp).Error; err != nil {
			return err
		}

		if err := RegistrarReversion(tx, &m, &comp, &d, actorID); err != nil {
			return err
		}
		mov = &comp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mov, nil
}
