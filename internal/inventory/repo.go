package inventory

import (
	"errors"
	"time"

	"inventario/internal/models"

	"gorm.io/gorm"
)

// Repo — lecturas del inventario. Las escrituras pasan por Service.
type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

func (r *Repo) ListarDispositivos(sedeID *uint) ([]models.Dispositivo, error) {
	var out []models.Dispositivo
	q := r.db.Preload("Posicion").Preload("Sede").Order("id")
	if sedeID != nil {
		q = q.Where("sede_id = ?", *sedeID)
	}
	err := q.Find(&out).Error
	return out, err
}

func (r *Repo) ObtenerDispositivo(id uint) (*models.Dispositivo, error) {
	var d models.Dispositivo
	if err := r.db.Preload("Posicion").Preload("Sede").First(&d, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *Repo) ListarPosiciones(sedeID *uint, piso string) ([]models.Posicion, error) {
	var out []models.Posicion
	q := r.db.Order("id")
	if sedeID != nil {
		q = q.Where("sede_id = ?", *sedeID)
	}
	if piso != "" {
		q = q.Where("piso = ?", piso)
	}
	err := q.Find(&out).Error
	return out, err
}

func (r *Repo) ObtenerPosicion(id uint) (*models.Posicion, []uint, error) {
	var p models.Posicion
	if err := r.db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	miembros, err := dispositivosDeseados(r.db, p.ID, nil)
	if err != nil {
		return nil, nil, err
	}
	return &p, miembros, nil
}

func (r *Repo) ObtenerMovimiento(id uint) (*models.Movimiento, error) {
	var m models.Movimiento
	if err := r.db.First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *Repo) ListarMovimientos(dispositivoID *uint, limit, offset int) ([]models.Movimiento, error) {
	var out []models.Movimiento
	q := r.db.Order("fecha_movimiento DESC, id DESC")
	if dispositivoID != nil {
		q = q.Where("dispositivo_id = ?", *dispositivoID)
	}
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	err := q.Find(&out).Error
	return out, err
}

// FiltroHistorial — filtros de la vista de auditoría.
type FiltroHistorial struct {
	TipoCambio    string
	DispositivoID *uint
	FechaInicio   *time.Time
	FechaFin      *time.Time
	Limit         int
	Offset        int
}

func (r *Repo) ListarHistorial(f FiltroHistorial) ([]models.Historial, int64, error) {
	q := r.db.Model(&models.Historial{})
	if f.TipoCambio != "" {
		q = q.Where("tipo_cambio = ?", f.TipoCambio)
	}
	if f.DispositivoID != nil {
		q = q.Where("dispositivo_id = ?", *f.DispositivoID)
	}
	if f.FechaInicio != nil {
		q = q.Where("fecha_modificacion >= ?", *f.FechaInicio)
	}
	if f.FechaFin != nil {
		// fin inclusivo: se corre un día al filtrar por fecha sin hora
		q = q.Where("fecha_modificacion < ?", f.FechaFin.Add(24*time.Hour))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	var out []models.Historial
	err := q.Order("fecha_modificacion DESC, id DESC").
		Limit(f.Limit).Offset(f.Offset).
		Find(&out).Error
	return out, total, err
}

// Tarjeta — contador del tablero.
type Tarjeta struct {
	Titulo string `json:"title"`
	Valor  int64  `json:"value"`
}

// Tablero computes the dashboard counters, optionally scoped to one sede.
func (r *Repo) Tablero(sedeID *uint) ([]Tarjeta, error) {
	base := func() *gorm.DB {
		q := r.db.Model(&models.Dispositivo{})
		if sedeID != nil {
			q = q.Where("sede_id = ?", *sedeID)
		}
		return q
	}
	contar := func(q *gorm.DB) (int64, error) {
		var n int64
		err := q.Count(&n).Error
		return n, err
	}

	tarjetas := []struct {
		titulo string
		query  *gorm.DB
	}{
		{"Total dispositivos", base()},
		{"Dispositivos en uso", base().Where("estado_uso = ?", models.UsoEnUso)},
		{"Buen estado", base().Where("estado = ?", models.EstadoBueno)},
		{"Dispositivos disponibles", base().Where("estado_uso = ?", models.UsoDisponible)},
		{"En reparación", base().Where("estado = ?", models.EstadoReparar)},
		{"Perdidos/robados", base().Where("estado = ?", models.EstadoPerdidoRobado)},
		{"Mal estado", base().Where("estado = ?", models.EstadoMalo)},
		{"Inhabilitados", base().Where("estado_uso = ?", models.UsoInhabilitado)},
	}

	out := make([]Tarjeta, 0, len(tarjetas))
	for _, t := range tarjetas {
		n, err := contar(t.query)
		if err != nil {
			return nil, err
		}
		out = append(out, Tarjeta{Titulo: t.titulo, Valor: n})
	}
	return out, nil
}

// DispositivosPorSede: total de dispositivos agrupado por nombre de sede.
func (r *Repo) DispositivosPorSede() ([]map[string]any, error) {
	type fila struct {
		Nombre string
		Total  int64
	}
	var filas []fila
	err := r.db.Model(&models.Sede{}).
		Select("sedes.nombre AS nombre, COUNT(dispositivos.id) AS total").
		Joins("LEFT JOIN dispositivos ON dispositivos.sede_id = sedes.id AND dispositivos.deleted_at IS NULL").
		Group("sedes.nombre").
		Order("sedes.nombre").
		Scan(&filas).Error
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(filas))
	for _, f := range filas {
		out = append(out, map[string]any{"nombre": f.Nombre, "total_dispositivos": f.Total})
	}
	return out, nil
}
