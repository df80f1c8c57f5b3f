package externos

import (
	"errors"
	"fmt"
	"time"

	"inventario/internal/inventory"
	"inventario/internal/models"

	"gorm.io/gorm"
)

// Service gestiona préstamos de dispositivos a usuarios externos. Cada
// préstamo y devolución corre en una sola transacción: asignación,
// bitácora ENTRADA/SALIDA, efectos sobre el dispositivo e historial.
type Service struct{ db *gorm.DB }

func NewService(db *gorm.DB) *Service { return &Service{db: db} }

type UsuarioExternoInput struct {
	Nombre    string `json:"nombre"`
	Documento string `json:"documento"`
	Correo    string `json:"correo"`
	Telefono  string `json:"telefono"`
	Empresa   string `json:"empresa"`
}

func (s *Service) GuardarUsuarioExterno(id uint, in UsuarioExternoInput) (*models.UsuarioExterno, error) {
	if in.Nombre == "" {
		return nil, &inventory.ValidationError{Field: "nombre", Message: "el nombre es obligatorio"}
	}
	if in.Documento == "" {
		return nil, &inventory.ValidationError{Field: "documento", Message: "el documento es obligatorio"}
	}

	var u models.UsuarioExterno
	if id == 0 {
		u = models.UsuarioExterno{
			Nombre: in.Nombre, Documento: in.Documento,
			Correo: in.Correo, Telefono: in.Telefono, Empresa: in.Empresa,
		}
		if err := s.db.Create(&u).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, &inventory.ValidationError{Field: "documento", Message: "ya existe un usuario externo con ese documento"}
			}
			return nil, err
		}
		return &u, nil
	}

	if err := s.db.First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, inventory.ErrNotFound
		}
		return nil, err
	}
	u.Nombre, u.Documento, u.Correo, u.Telefono, u.Empresa =
		in.Nombre, in.Documento, in.Correo, in.Telefono, in.Empresa
	if err := s.db.Save(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, &inventory.ValidationError{Field: "documento", Message: "ya existe un usuario externo con ese documento"}
		}
		return nil, err
	}
	return &u, nil
}

func (s *Service) ListarUsuariosExternos() ([]models.UsuarioExterno, error) {
	var out []models.UsuarioExterno
	err := s.db.Order("nombre").Find(&out).Error
	return out, err
}

// ultimoRegistro returns the most recent ENTRADA/SALIDA row for a device,
// nil when the device has no ledger yet.
func ultimoRegistro(tx *gorm.DB, dispositivoID uint) (*models.RegistroAsignacion, error) {
	var reg models.RegistroAsignacion
	err := tx.Where("dispositivo_id = ?", dispositivoID).
		Order("fecha DESC, id DESC").
		First(&reg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// anotarRegistro appends one ledger row enforcing strict alternation:
// two SALIDA (or two ENTRADA) in a row for the same device is a conflict.
func anotarRegistro(tx *gorm.DB, asignacionID, dispositivoID uint, tipo string) error {
	ultimo, err := ultimoRegistro(tx, dispositivoID)
	if err != nil {
		return err
	}
	if ultimo != nil && ultimo.Tipo == tipo {
		return fmt.Errorf("%w: el último registro del dispositivo ya es %s", inventory.ErrConflict, tipo)
	}
	if ultimo == nil && tipo == models.RegistroEntrada {
		return fmt.Errorf("%w: no hay salida previa que devolver", inventory.ErrConflict)
	}
	return tx.Create(&models.RegistroAsignacion{
		AsignacionID:  asignacionID,
		DispositivoID: dispositivoID,
		Tipo:          tipo,
	}).Error
}

type AsignarInput struct {
	DispositivoID    uint   `json:"dispositivo"`
	UsuarioExternoID uint   `json:"usuario_externo"`
	Observacion      string `json:"observacion"`
}

// Asignar presta un dispositivo a un usuario externo. Un dispositivo solo
// admite una asignación VIGENTE; el índice parcial respalda el chequeo
// bajo concurrencia.
func (s *Service) Asignar(in AsignarInput, actorID *uint) (*models.AsignacionExterna, error) {
	var asignacion models.AsignacionExterna
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var d models.Dispositivo
		if err := tx.First(&d, in.DispositivoID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return inventory.ErrNotFound
			}
			return err
		}
		var ext models.UsuarioExterno
		if err := tx.First(&ext, in.UsuarioExternoID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return inventory.ErrNotFound
			}
			return err
		}
		if d.EstadoUso == models.UsoInhabilitado {
			return &inventory.ValidationError{Field: "dispositivo", Message: "el dispositivo está inhabilitado"}
		}

		var vigentes int64
		if err := tx.Model(&models.AsignacionExterna{}).
			Where("dispositivo_id = ? AND estado = ?", d.ID, models.AsignacionVigente).
			Count(&vigentes).Error; err != nil {
			return err
		}
		if vigentes > 0 {
			return fmt.Errorf("%w: el dispositivo ya tiene una asignación vigente", inventory.ErrConflict)
		}

		asignacion = models.AsignacionExterna{
			DispositivoID:    d.ID,
			UsuarioExternoID: ext.ID,
			Estado:           models.AsignacionVigente,
			Observacion:      in.Observacion,
		}
		if err := tx.Create(&asignacion).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: el dispositivo ya tiene una asignación vigente", inventory.ErrConflict)
			}
			return err
		}
		if err := anotarRegistro(tx, asignacion.ID, d.ID, models.RegistroSalida); err != nil {
			return err
		}

		antes := d
		d.EstadoUso = models.UsoEnUso
		d.Ubicacion = models.UbicacionCliente
		if err := tx.Save(&d).Error; err != nil {
			return err
		}
		if err := inventory.RegistrarModificacion(tx, &antes, &d, actorID); err != nil {
			return err
		}
		return registrarAsignacion(tx, &asignacion, &d, &ext, actorID,
			fmt.Sprintf("Dispositivo %s asignado a %s (%s)", d.Serial, ext.Nombre, ext.Documento))
	})
	if err != nil {
		return nil, err
	}
	return &asignacion, nil
}

// Devolver cierra la asignación: DEVUELTO, fecha de devolución, ENTRADA en
// la bitácora y el dispositivo queda disponible en sede.
func (s *Service) Devolver(asignacionID uint, actorID *uint) (*models.AsignacionExterna, error) {
	return s.cerrar(asignacionID, models.AsignacionDevuelta, actorID)
}

// Vencer marca la asignación como VENCIDO con los mismos efectos de una
// devolución.
func (s *Service) Vencer(asignacionID uint, actorID *uint) (*models.AsignacionExterna, error) {
	return s.cerrar(asignacionID, models.AsignacionVencida, actorID)
}

func (s *Service) cerrar(asignacionID uint, estadoFinal string, actorID *uint) (*models.AsignacionExterna, error) {
	var asignacion models.AsignacionExterna
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&asignacion, asignacionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return inventory.ErrNotFound
			}
			return err
		}
		if asignacion.Estado != models.AsignacionVigente {
			return fmt.Errorf("%w: la asignación ya está %s", inventory.ErrConflict, asignacion.Estado)
		}

		var d models.Dispositivo
		if err := tx.First(&d, asignacion.DispositivoID).Error; err != nil {
			return err
		}
		var ext models.UsuarioExterno
		if err := tx.First(&ext, asignacion.UsuarioExternoID).Error; err != nil {
			return err
		}

		ahora := time.Now()
		asignacion.Estado = estadoFinal
		asignacion.FechaDevolucion = &ahora
		if err := tx.Save(&asignacion).Error; err != nil {
			return err
		}
		if err := anotarRegistro(tx, asignacion.ID, d.ID, models.RegistroEntrada); err != nil {
			return err
		}

		antes := d
		d.EstadoUso = models.UsoDisponible
		d.Ubicacion = models.UbicacionSede
		if err := tx.Save(&d).Error; err != nil {
			return err
		}
		if err := inventory.RegistrarModificacion(tx, &antes, &d, actorID); err != nil {
			return err
		}
		return registrarAsignacion(tx, &asignacion, &d, &ext, actorID,
			fmt.Sprintf("Dispositivo %s devuelto por %s (%s)", d.Serial, ext.Nombre, ext.Documento))
	})
	if err != nil {
		return nil, err
	}
	return &asignacion, nil
}

func registrarAsignacion(tx *gorm.DB, a *models.AsignacionExterna, d *models.Dispositivo, ext *models.UsuarioExterno, actorID *uint, detalle string) error {
	return inventory.RegistrarEvento(tx, inventory.Evento{
		DispositivoID:  &d.ID,
		ActorID:        actorID,
		TipoCambio:     models.CambioAsignacion,
		ModeloAfectado: "AsignacionExterna",
		InstanciaID:    &a.ID,
		Detalle: map[string]any{
			"detalle":         detalle,
			"asignacion_id":   a.ID,
			"usuario_externo": ext.ID,
			"estado":          a.Estado,
		},
		Dispositivo: d,
	})
}

type FiltroAsignaciones struct {
	DispositivoID *uint
	Estado        string
}

func (s *Service) ListarAsignaciones(f FiltroAsignaciones) ([]models.AsignacionExterna, error) {
	q := s.db.Preload("Dispositivo").Preload("UsuarioExterno").Order("fecha_asignacion DESC, id DESC")
	if f.DispositivoID != nil {
		q = q.Where("dispositivo_id = ?", *f.DispositivoID)
	}
	if f.Estado != "" {
		q = q.Where("estado = ?", f.Estado)
	}
	var out []models.AsignacionExterna
	err := q.Find(&out).Error
	return out, err
}

func (s *Service) ListarRegistros(dispositivoID uint) ([]models.RegistroAsignacion, error) {
	var out []models.RegistroAsignacion
	err := s.db.Where("dispositivo_id = ?", dispositivoID).
		Order("fecha, id").Find(&out).Error
	return out, err
}
