package sedes

import (
	"errors"

	"inventario/internal/inventory"
	"inventario/internal/models"

	"gorm.io/gorm"
)

// Repo maneja sedes y servicios. El borrado de sede arrastra sus
// posiciones y desancla los dispositivos en una sola transacción.
type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

func (r *Repo) ListarSedes() ([]models.Sede, error) {
	var out []models.Sede
	err := r.db.Order("nombre").Find(&out).Error
	return out, err
}

func (r *Repo) ObtenerSede(id uint) (*models.Sede, error) {
	var s models.Sede
	if err := r.db.First(&s, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, inventory.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

type SedeInput struct {
	Nombre    string `json:"nombre"`
	Direccion string `json:"direccion"`
	Ciudad    string `json:"ciudad"`
}

func (r *Repo) GuardarSede(id uint, in SedeInput) (*models.Sede, error) {
	if in.Nombre == "" {
		return nil, &inventory.ValidationError{Field: "nombre", Message: "el nombre de la sede es obligatorio"}
	}
	var s models.Sede
	if id == 0 {
		s = models.Sede{Nombre: in.Nombre, Direccion: in.Direccion, Ciudad: in.Ciudad}
		if err := r.db.Create(&s).Error; err != nil {
			return nil, err
		}
		return &s, nil
	}
	if err := r.db.First(&s, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, inventory.ErrNotFound
		}
		return nil, err
	}
	s.Nombre, s.Direccion, s.Ciudad = in.Nombre, in.Direccion, in.Ciudad
	if err := r.db.Save(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// EliminarSede borra la sede con sus posiciones. Los dispositivos quedan
// sin sede ni posición; su ficha sobrevive para el historial.
func (r *Repo) EliminarSede(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var s models.Sede
		if err := tx.First(&s, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return inventory.ErrNotFound
			}
			return err
		}

		var posiciones []models.Posicion
		if err := tx.Where("sede_id = ?", id).Find(&posiciones).Error; err != nil {
			return err
		}
		for i := range posiciones {
			if err := inventory.DesocuparPosicion(tx, posiciones[i].ID); err != nil {
				return err
			}
		}
		if err := tx.Where("sede_id = ?", id).Delete(&models.Posicion{}).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Dispositivo{}).Where("sede_id = ?", id).
			Updates(map[string]any{"sede_id": nil, "posicion_id": nil, "piso": nil}).Error; err != nil {
			return err
		}

		if err := tx.Where("sede_id = ?", id).Delete(&models.ServicioSede{}).Error; err != nil {
			return err
		}
		if err := tx.Where("sede_id = ?", id).Delete(&models.UsuarioSede{}).Error; err != nil {
			return err
		}
		return tx.Delete(&s).Error
	})
}

func (r *Repo) ListarServicios() ([]models.Servicio, error) {
	var out []models.Servicio
	err := r.db.Order("nombre").Find(&out).Error
	return out, err
}

type ServicioInput struct {
	Nombre string `json:"nombre"`
	Codigo string `json:"codigo_analitico"`
	Color  string `json:"color"`
	Sedes  []uint `json:"sedes"`
}

func (r *Repo) GuardarServicio(id uint, in ServicioInput) (*models.Servicio, error) {
	if in.Nombre == "" {
		return nil, &inventory.ValidationError{Field: "nombre", Message: "el nombre del servicio es obligatorio"}
	}
	var svc models.Servicio
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if id == 0 {
			svc = models.Servicio{Nombre: in.Nombre, CodigoAnalitico: in.Codigo, Color: in.Color}
			if err := tx.Create(&svc).Error; err != nil {
				return err
			}
		} else {
			if err := tx.First(&svc, id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return inventory.ErrNotFound
				}
				return err
			}
			svc.Nombre, svc.CodigoAnalitico, svc.Color = in.Nombre, in.Codigo, in.Color
			if err := tx.Save(&svc).Error; err != nil {
				return err
			}
		}

		if in.Sedes == nil {
			return nil
		}
		if err := tx.Where("servicio_id = ?", svc.ID).Delete(&models.ServicioSede{}).Error; err != nil {
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
			if err := tx.Create(&models.ServicioSede{ServicioID: svc.ID, SedeID: sedeID}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

// EliminarServicio suelta el servicio de sus posiciones restaurando el
// color original de cada una.
func (r *Repo) EliminarServicio(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var svc models.Servicio
		if err := tx.First(&svc, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return inventory.ErrNotFound
			}
			return err
		}
		var posiciones []models.Posicion
		if err := tx.Where("servicio_id = ?", id).Find(&posiciones).Error; err != nil {
			return err
		}
		for i := range posiciones {
			p := &posiciones[i]
			p.ServicioID = nil
			if p.ColorOriginal != "" {
				p.Color = p.ColorOriginal
			}
			if err := tx.Save(p).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("servicio_id = ?", id).Delete(&models.ServicioSede{}).Error; err != nil {
			return err
		}
		return tx.Delete(&svc).Error
	})
}

// SedesDeServicio lists the site ids a service is offered at.
func (r *Repo) SedesDeServicio(servicioID uint) ([]uint, error) {
	var out []uint
	err := r.db.Model(&models.ServicioSede{}).
		Where("servicio_id = ?", servicioID).
		Order("sede_id").
		Pluck("sede_id", &out).Error
	return out, err
}
