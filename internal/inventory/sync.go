package inventory

import (
	"errors"
	"fmt"

	"inventario/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Sincronizador de posición↔dispositivo: única autoridad que toca la tabla
// posicion_dispositivos y los campos desnormalizados posicion/sede/piso del
// dispositivo. Todas las funciones asumen que corren dentro de la
// transacción del llamador.

// bloquearPosicion reloads the position under a row lock so the capacity
// check can't race with a concurrent reassignment. SQLite serializes writers
// on its own and rejects FOR UPDATE, hence the dialect switch.
func bloquearPosicion(tx *gorm.DB, id uint) (*models.Posicion, error) {
	q := tx
	switch tx.Dialector.Name() {
	case "postgres", "mysql":
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var p models.Posicion
	if err := q.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func contarDispositivos(tx *gorm.DB, posicionID uint) (int64, error) {
	var n int64
	err := tx.Model(&models.PosicionDispositivo{}).
		Where("posicion_id = ?", posicionID).
		Count(&n).Error
	return n, err
}

func perteneceAPosicion(tx *gorm.DB, dispositivoID, posicionID uint) (bool, error) {
	var n int64
	err := tx.Model(&models.PosicionDispositivo{}).
		Where("posicion_id = ? AND dispositivo_id = ?", posicionID, dispositivoID).
		Count(&n).Error
	return n > 0, err
}

func membresias(tx *gorm.DB, dispositivoID uint) ([]models.PosicionDispositivo, error) {
	var ms []models.PosicionDispositivo
	err := tx.Where("dispositivo_id = ?", dispositivoID).Find(&ms).Error
	return ms, err
}

// Reasignar moves d into nueva (or detaches it when nueva is nil), keeping
// posicion/sede/piso in sync with the membership table. It removes ALL
// previous memberships; historical drift may have left more than one, and
// extra ones (beyond the device's primary position) get an "exited" movement
// row so the cleanup is visible in the log. The primary transition itself is
// logged by the movement recorder, not here.
func Reasignar(tx *gorm.DB, d *models.Dispositivo, nueva *models.Posicion, actorID *uint) error {
	previas, err := membresias(tx, d.ID)
	if err != nil {
		return err
	}

	for _, m := range previas {
		if nueva != nil && m.PosicionID == nueva.ID {
			continue // ya está; la fila se conserva
		}
		if err := tx.Delete(&models.PosicionDispositivo{}, m.ID).Error; err != nil {
			return err
		}
		esPrimaria := d.PosicionID != nil && *d.PosicionID == m.PosicionID
		if !esPrimaria {
			salida := models.Movimiento{
				DispositivoID:    &d.ID,
				EncargadoID:      actorID,
				PosicionOrigenID: &m.PosicionID,
				UbicacionDestino: models.UbicacionOtro,
				SedeID:           d.SedeID,
				Observacion:      fmt.Sprintf("Dispositivo %s retirado de una posición residual (posición %d).", d.Serial, m.PosicionID),
				Confirmado:       true,
			}
			if err := tx.Create(&salida).Error; err != nil {
				return err
			}
		}
	}

	if nueva == nil {
		d.PosicionID = nil
		d.Piso = nil
		return tx.Model(d).Select("posicion_id", "piso").
			Updates(map[string]any{"posicion_id": nil, "piso": nil}).Error
	}

	// re-chequeo de cupo bajo lock: la validación previa corrió sin él
	bloqueada, err := bloquearPosicion(tx, nueva.ID)
	if err != nil {
		return err
	}
	yaEsta, err := perteneceAPosicion(tx, d.ID, bloqueada.ID)
	if err != nil {
		return err
	}
	if !yaEsta {
		n, err := contarDispositivos(tx, bloqueada.ID)
		if err != nil {
			return err
		}
		if n >= models.MaxDispositivos {
			return invalid("posicion", fmt.Sprintf("la posición ya tiene %d dispositivos", models.MaxDispositivos))
		}
		if err := tx.Create(&models.PosicionDispositivo{PosicionID: bloqueada.ID, DispositivoID: d.ID}).Error; err != nil {
			return err
		}
	}

	d.PosicionID = &bloqueada.ID
	d.SedeID = bloqueada.SedeID
	piso := bloqueada.Piso
	d.Piso = &piso
	return tx.Model(d).Select("posicion_id", "sede_id", "piso").
		Updates(map[string]any{"posicion_id": d.PosicionID, "sede_id": d.SedeID, "piso": d.Piso}).Error
}

// DesocuparPosicion bulk-detaches every device referencing the position
// (used by position delete; no per-device movement rows).
func DesocuparPosicion(tx *gorm.DB, posicionID uint) error {
	if err := tx.Model(&models.Dispositivo{}).
		Where("posicion_id = ?", posicionID).
		Updates(map[string]any{"posicion_id": nil, "piso": nil}).Error; err != nil {
		return err
	}
	return tx.Where("posicion_id = ?", posicionID).
		Delete(&models.PosicionDispositivo{}).Error
}
