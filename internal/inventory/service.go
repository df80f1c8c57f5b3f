package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"inventario/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service { return &Service{db: db} }

// OptionalUint distinguishes an absent JSON key from an explicit null, so a
// PUT can detach a device (posicion: null) without clobbering on every call.
type OptionalUint struct {
	Set   bool
	Value *uint
}

func (o *OptionalUint) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	return json.Unmarshal(b, &o.Value)
}

type DispositivoInput struct {
	Tipo                *string      `json:"tipo"`
	Estado              *string      `json:"estado"`
	Marca               *string      `json:"marca"`
	Regimen             *string      `json:"regimen"`
	RazonSocial         *string      `json:"razon_social"`
	Modelo              *string      `json:"modelo"`
	Serial              *string      `json:"serial"`
	PlacaCU             *string      `json:"placa_cu"`
	EstadoPropiedad     *string      `json:"estado_propiedad"`
	Posicion            OptionalUint `json:"posicion"`
	Sede                OptionalUint `json:"sede"`
	CapacidadDiscoDuro  *string      `json:"capacidad_disco_duro"`
	CapacidadMemoriaRAM *string      `json:"capacidad_memoria_ram"`
	Ubicacion           *string      `json:"ubicacion"`
	Proveedor           *string      `json:"proveedor"`
	SistemaOperativo    *string      `json:"sistema_operativo"`
	Procesador          *string      `json:"procesador"`
	EstadoUso           *string      `json:"estado_uso"`
	Observaciones       *string      `json:"observaciones"`
}

func aplicarInput(d *models.Dispositivo, in *DispositivoInput) {
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	setStr(&d.Tipo, in.Tipo)
	setStr(&d.Estado, in.Estado)
	setStr(&d.Marca, in.Marca)
	setStr(&d.Regimen, in.Regimen)
	setStr(&d.RazonSocial, in.RazonSocial)
	setStr(&d.Modelo, in.Modelo)
	setStr(&d.Serial, in.Serial)
	setStr(&d.EstadoPropiedad, in.EstadoPropiedad)
	setStr(&d.CapacidadDiscoDuro, in.CapacidadDiscoDuro)
	setStr(&d.CapacidadMemoriaRAM, in.CapacidadMemoriaRAM)
	setStr(&d.Ubicacion, in.Ubicacion)
	setStr(&d.Proveedor, in.Proveedor)
	setStr(&d.SistemaOperativo, in.SistemaOperativo)
	setStr(&d.Procesador, in.Procesador)
	setStr(&d.EstadoUso, in.EstadoUso)
	setStr(&d.Observaciones, in.Observaciones)
	if in.PlacaCU != nil {
		placa := strings.TrimSpace(*in.PlacaCU)
		if placa == "" {
			d.PlacaCU = nil
		} else {
			d.PlacaCU = &placa
		}
	}
	if in.Posicion.Set {
		d.PosicionID = in.Posicion.Value
	}
	if in.Sede.Set {
		d.SedeID = in.Sede.Value
	}
}

// serialDisponible / placaDisponible: pre-checks with field-keyed messages;
// the partial unique indexes still back them up under races.
func serialDisponible(tx *gorm.DB, serial string, excluirID uint) error {
	var n int64
	q := tx.Model(&models.Dispositivo{}).Where("serial = ?", serial)
	if excluirID != 0 {
		q = q.Where("id <> ?", excluirID)
	}
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return invalid("serial", "ya existe un dispositivo con este serial")
	}
	return nil
}

func placaDisponible(tx *gorm.DB, placa string, excluirID uint) error {
	var n int64
	q := tx.Model(&models.Dispositivo{}).Where("placa_cu = ?", placa)
	if excluirID != 0 {
		q = q.Where("id <> ?", excluirID)
	}
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return invalid("placa_cu", "ya existe un dispositivo con esta placa CU")
	}
	return nil
}

func traducirIntegridad(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return invalid("serial", "el serial o la placa CU ya existen en el sistema")
	}
	return err
}

// CrearDispositivo runs the full create path: gatekeeper, membership sync,
// movement row when the device is born in a position, and the CREACION
// history entry — all in one transaction.
func (s *Service) CrearDispositivo(in DispositivoInput, actorID *uint) (*models.Dispositivo, error) {
	var creado *models.Dispositivo
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var d models.Dispositivo
		aplicarInput(&d, &in)

		for campo, valor := range map[string]string{
			"tipo": d.Tipo, "marca": d.Marca, "modelo": d.Modelo, "serial": d.Serial,
		} {
			if valor == "" {
				return invalid(campo, "el campo es obligatorio")
			}
		}
		if err := serialDisponible(tx, d.Serial, 0); err != nil {
			return err
		}
		if d.PlacaCU != nil {
			if err := placaDisponible(tx, *d.PlacaCU, 0); err != nil {
				return err
			}
		}
		if err := ValidarColocacion(tx, &d, nil); err != nil {
			return err
		}

		posicionID := d.PosicionID
		d.PosicionID = nil // la membresía la fija el sincronizador
		if err := tx.Create(&d).Error; err != nil {
			return traducirIntegridad(err)
		}

		if posicionID != nil {
			nueva, err := bloquearPosicion(tx, *posicionID)
			if err != nil {
				return err
			}
			if err := Reasignar(tx, &d, nueva, actorID); err != nil {
				return err
			}
			mov := models.Movimiento{
				DispositivoID:     &d.ID,
				EncargadoID:       actorID,
				PosicionDestinoID: posicionID,
				UbicacionOrigen:   models.UbicacionOtro,
				SedeID:            d.SedeID,
				Confirmado:        true,
			}
			mov.Observacion = observacionAuto(tx, &d, &mov)
			if err := tx.Create(&mov).Error; err != nil {
				return err
			}
			if err := RegistrarMovimiento(tx, &mov, &d, actorID, models.CambioMovimiento); err != nil {
				return err
			}
		}

		if err := RegistrarCreacion(tx, &d, actorID); err != nil {
			return err
		}
		creado = &d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return creado, nil
}

// ActualizarDispositivo: snapshot-then-mutate. The pre-write snapshot feeds
// the history diff; capturing it after any mutation would degenerate every
// diff to empty.
func (s *Service) ActualizarDispositivo(id uint, in DispositivoInput, actorID *uint) (*models.Dispositivo, error) {
	var actualizado *models.Dispositivo
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var d models.Dispositivo
		if err := tx.First(&d, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		antes := d // snapshot previo a toda mutación

		aplicarInput(&d, &in)

		if d.Serial != antes.Serial {
			if err := serialDisponible(tx, d.Serial, d.ID); err != nil {
				return err
			}
		}
		if d.PlacaCU != nil && (antes.PlacaCU == nil || *d.PlacaCU != *antes.PlacaCU) {
			if err := placaDisponible(tx, *d.PlacaCU, d.ID); err != nil {
				return err
			}
		}
		if err := ValidarColocacion(tx, &d, &antes); err != nil {
			return err
		}

		cambioPosicion := !mismoUintPtr(d.PosicionID, antes.PosicionID)
		if cambioPosicion {
			var nueva *models.Posicion
			if d.PosicionID != nil {
				p, err := bloquearPosicion(tx, *d.PosicionID)
				if err != nil {
					return err
				}
				nueva = p
			}
			// restaurar el estado real antes del swap; Reasignar fija los
			// campos desnormalizados
			d.PosicionID = antes.PosicionID
			d.Piso = antes.Piso
			if err := Reasignar(tx, &d, nueva, actorID); err != nil {
				return err
			}
		}

		if err := tx.Save(&d).Error; err != nil {
			return traducirIntegridad(err)
		}

		if cambioPosicion && d.PosicionID != nil {
			mov := models.Movimiento{
				DispositivoID:     &d.ID,
				EncargadoID:       actorID,
				PosicionOrigenID:  antes.PosicionID,
				PosicionDestinoID: d.PosicionID,
				SedeID:            d.SedeID,
				Confirmado:        true,
			}
			if antes.PosicionID == nil {
				mov.UbicacionOrigen = models.UbicacionOtro
			}
			mov.Observacion = observacionAuto(tx, &d, &mov)
			if err := tx.Create(&mov).Error; err != nil {
				return err
			}
			if err := RegistrarMovimiento(tx, &mov, &d, actorID, models.CambioMovimiento); err != nil {
				return err
			}
		}

		if err := RegistrarModificacion(tx, &antes, &d, actorID); err != nil {
			return err
		}
		actualizado = &d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return actualizado, nil
}

// EliminarDispositivo cascades to movements, memberships and history rows,
// then leaves a final ELIMINACION entry with no device reference.
func (s *Service) EliminarDispositivo(id uint, actorID *uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var d models.Dispositivo
		if err := tx.First(&d, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Where("dispositivo_id = ?", d.ID).Delete(&models.Movimiento{}).Error; err != nil {
			return err
		}
		if err := tx.Where("dispositivo_id = ?", d.ID).Delete(&models.Historial{}).Error; err != nil {
			return err
		}
		if err := tx.Where("dispositivo_id = ?", d.ID).Delete(&models.PosicionDispositivo{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&d).Error; err != nil {
			return err
		}
		return RegistrarEliminacion(tx, &d, actorID)
	})
}

func mismoUintPtr(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type PosicionInput struct {
	Nombre       *string         `json:"nombre"`
	Tipo         *string         `json:"tipo"`
	Estado       *string         `json:"estado"`
	Detalles     *string         `json:"detalles"`
	Fila         *int            `json:"fila"`
	Columna      *string         `json:"columna"`
	Color        *string         `json:"color"`
	ColorFuente  *string         `json:"colorFuente"`
	Borde        *bool           `json:"borde"`
	BordeDoble   *bool           `json:"bordeDoble"`
	BordeDetalle json.RawMessage `json:"bordeDetalle"`
	Piso         *string         `json:"piso"`
	Sede         OptionalUint    `json:"sede"`
	Servicio     OptionalUint    `json:"servicio"`
	MergedCells  json.RawMessage `json:"mergedCells"`
	Dispositivos *[]uint         `json:"dispositivos"`
}

// GuardarPosicion creates (id == 0) or updates a position, derives its color
// from the assigned service and reconciles the device set through the
// synchronizer. Devices added or removed get MODIFICACION history entries.
func (s *Service) GuardarPosicion(id uint, in PosicionInput, actorID *uint) (*models.Posicion, error) {
	var guardada *models.Posicion
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var p models.Posicion
		if id != 0 {
			if err := tx.First(&p, id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}
		}

		setStr := func(dst *string, src *string) {
			if src != nil {
				*dst = strings.TrimSpace(*src)
			}
		}
		setStr(&p.Nombre, in.Nombre)
		setStr(&p.Tipo, in.Tipo)
		setStr(&p.Estado, in.Estado)
		setStr(&p.Detalles, in.Detalles)
		setStr(&p.Columna, in.Columna)
		setStr(&p.Piso, in.Piso)
		if in.Fila != nil {
			p.Fila = *in.Fila
		}
		if in.Color != nil {
			p.Color = *in.Color
		}
		if in.ColorFuente != nil {
			p.ColorFuente = *in.ColorFuente
		}
		if in.Borde != nil {
			p.Borde = *in.Borde
		}
		if in.BordeDoble != nil {
			p.BordeDoble = *in.BordeDoble
		}
		if in.BordeDetalle != nil {
			p.BordeDetalle = datatypes.JSON(in.BordeDetalle)
		}
		if in.MergedCells != nil {
			p.MergedCells = datatypes.JSON(in.MergedCells)
		}
		if in.Sede.Set {
			if in.Sede.Value != nil {
				var sede models.Sede
				if err := tx.First(&sede, *in.Sede.Value).Error; err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return invalid("sede", "la sede seleccionada no existe")
					}
					return err
				}
			}
			p.SedeID = in.Sede.Value
		}

		if in.Servicio.Set {
			cambioServicio := !mismoUintPtr(in.Servicio.Value, p.ServicioID)
			p.ServicioID = in.Servicio.Value
			if cambioServicio {
				var svc *models.Servicio
				if p.ServicioID != nil {
					var sv models.Servicio
					if err := tx.First(&sv, *p.ServicioID).Error; err != nil {
						if errors.Is(err, gorm.ErrRecordNotFound) {
							return invalid("servicio", "el servicio seleccionado no existe")
						}
						return err
					}
					svc = &sv
				}
				if p.ColorOriginal == "" {
					p.ColorOriginal = p.Color
				}
				p.Color = ColorDesdeServicio(svc)
			}
		}

		// conjunto final de dispositivos que la escritura deja asignados
		deseados, err := dispositivosDeseados(tx, p.ID, in.Dispositivos)
		if err != nil {
			return err
		}
		if err := ValidarPosicion(tx, &p, deseados); err != nil {
			return err
		}

		if err := tx.Save(&p).Error; err != nil {
			return err
		}

		if in.Dispositivos != nil {
			if err := s.sincronizarMiembros(tx, &p, deseados, actorID); err != nil {
				return err
			}
		}
		guardada = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return guardada, nil
}

func dispositivosDeseados(tx *gorm.DB, posicionID uint, solicitados *[]uint) ([]uint, error) {
	if solicitados != nil {
		return *solicitados, nil
	}
	if posicionID == 0 {
		return nil, nil
	}
	var ms []models.PosicionDispositivo
	if err := tx.Where("posicion_id = ?", posicionID).Find(&ms).Error; err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.DispositivoID)
	}
	return ids, nil
}

// sincronizarMiembros reconciles the position's device set against deseados:
// removed devices are detached, added ones reassigned, each with its own
// history diff.
func (s *Service) sincronizarMiembros(tx *gorm.DB, p *models.Posicion, deseados []uint, actorID *uint) error {
	actuales, err := dispositivosDeseados(tx, p.ID, nil)
	if err != nil {
		return err
	}
	enDeseados := map[uint]bool{}
	for _, id := range deseados {
		enDeseados[id] = true
	}
	enActuales := map[uint]bool{}
	for _, id := range actuales {
		enActuales[id] = true
	}

	for _, id := range actuales {
		if enDeseados[id] {
			continue
		}
		if err := s.moverMiembro(tx, id, nil, actorID); err != nil {
			return err
		}
	}
	for _, id := range deseados {
		if enActuales[id] {
			continue
		}
		if err := s.moverMiembro(tx, id, p, actorID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) moverMiembro(tx *gorm.DB, dispositivoID uint, destino *models.Posicion, actorID *uint) error {
	var d models.Dispositivo
	if err := tx.First(&d, dispositivoID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invalid("dispositivos", fmt.Sprintf("el dispositivo %d no existe", dispositivoID))
		}
		return err
	}
	antes := d
	if err := Reasignar(tx, &d, destino, actorID); err != nil {
		return err
	}
	return RegistrarModificacion(tx, &antes, &d, actorID)
}

// EliminarPosicion detaches every device silently (no movement rows) and
// removes the position.
func (s *Service) EliminarPosicion(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var p models.Posicion
		if err := tx.First(&p, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := DesocuparPosicion(tx, p.ID); err != nil {
			return err
		}
		return tx.Delete(&p).Error
	})
}
