package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode"

	"inventario/internal/models"

	"gorm.io/gorm"
)

// Catálogos cerrados. String fields are validated against these at the
// boundary instead of accepting free text.
var (
	tiposDispositivo = set(
		models.TipoComputador, models.TipoDesktop, models.TipoMonitor,
		models.TipoTablet, models.TipoMovil, models.TipoProDisplay,
		models.TipoPortatil, models.TipoTodoEnUno,
	)
	estadosDispositivo = set(
		models.EstadoBueno, models.EstadoBodegaCN, models.EstadoBodega,
		models.EstadoMala, models.EstadoMalo, models.EstadoPendienteBaja,
		models.EstadoPerdidoRobado, models.EstadoReparar,
		models.EstadoRepararBaja, models.EstadoSede, models.EstadoStock,
	)
	marcas       = set("DELL", "HP", "LENOVO", "APPLE", "SAMSUNG")
	estadosUso   = set(models.UsoDisponible, models.UsoEnUso, models.UsoInhabilitado)
	ubicaciones  = set(models.UbicacionCasa, models.UbicacionCliente, models.UbicacionSede, models.UbicacionOtro)
	capacidadesHD  = set("120GB", "250GB", "500GB", "1TB", "2TB", "4TB", "8TB")
	capacidadesRAM = set("2GB", "4GB", "8GB", "16GB", "32GB", "64GB")

	// tipos que exigen ficha técnica completa (RAM, SO, procesador)
	tiposConRequisitos = set(models.TipoComputador, models.TipoPortatil, models.TipoDesktop, models.TipoTodoEnUno)
	// estados que inhabilitan el dispositivo
	estadosInvalidos = set(models.EstadoMalo, models.EstadoPerdidoRobado, models.EstadoPendienteBaja)
)

func set(vs ...string) map[string]bool {
	m := make(map[string]bool, len(vs))
	for _, v := range vs {
		m[v] = true
	}
	return m
}

func enEnum(field, value string, valid map[string]bool) error {
	if value != "" && !valid[value] {
		return invalid(field, fmt.Sprintf("valor '%s' no válido", value))
	}
	return nil
}

// ValidarColocacion rejects a device write that would break an invariant.
// existente is nil on creation. The draft may be mutated: an invalid estado
// forces estado_uso to INHABILITADO.
func ValidarColocacion(tx *gorm.DB, d *models.Dispositivo, existente *models.Dispositivo) error {
	for _, c := range []struct {
		field, value string
		valid        map[string]bool
	}{
		{"tipo", d.Tipo, tiposDispositivo},
		{"estado", d.Estado, estadosDispositivo},
		{"marca", d.Marca, marcas},
		{"estado_uso", d.EstadoUso, estadosUso},
		{"ubicacion", d.Ubicacion, ubicaciones},
		{"capacidad_disco_duro", d.CapacidadDiscoDuro, capacidadesHD},
		{"capacidad_memoria_ram", d.CapacidadMemoriaRAM, capacidadesRAM},
	} {
		if err := enEnum(c.field, c.value, c.valid); err != nil {
			return err
		}
	}

	// posición ⇒ sede, y la sede debe coincidir con la de la posición
	if d.PosicionID != nil {
		if d.SedeID == nil {
			return invalid("sede", "debe especificar una sede si asigna una posición")
		}
		var pos models.Posicion
		if err := tx.First(&pos, *d.PosicionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return invalid("posicion", "la posición seleccionada no existe")
			}
			return err
		}
		if pos.SedeID == nil || *pos.SedeID != *d.SedeID {
			return invalid("posicion", "la posición no pertenece a la sede seleccionada")
		}

		// cupo al entrar a una posición distinta de la actual
		entra := existente == nil || existente.PosicionID == nil || *existente.PosicionID != *d.PosicionID
		if entra {
			n, err := contarDispositivos(tx, *d.PosicionID)
			if err != nil {
				return err
			}
			if n >= models.MaxDispositivos {
				return invalid("posicion", fmt.Sprintf("la posición ya tiene %d dispositivos", models.MaxDispositivos))
			}
		}
	}

	// ficha técnica obligatoria para equipos de cómputo, combinando con los
	// valores ya persistidos
	if tiposConRequisitos[tipoEfectivo(d, existente)] {
		if merge(d.CapacidadMemoriaRAM, existente, func(e *models.Dispositivo) string { return e.CapacidadMemoriaRAM }) == "" {
			return invalid("capacidad_memoria_ram", "capacidad de RAM requerida para este dispositivo")
		}
		if merge(d.SistemaOperativo, existente, func(e *models.Dispositivo) string { return e.SistemaOperativo }) == "" {
			return invalid("sistema_operativo", "sistema operativo requerido para este dispositivo")
		}
		if merge(d.Procesador, existente, func(e *models.Dispositivo) string { return e.Procesador }) == "" {
			return invalid("procesador", "procesador requerido para este dispositivo")
		}
	}

	// estado inválido ⇒ estado de uso forzado a INHABILITADO
	if estadosInvalidos[d.Estado] {
		if d.EstadoUso != "" && d.EstadoUso != models.UsoInhabilitado {
			return invalid("estado_uso", "el estado de uso debe ser INHABILITADO cuando el estado del dispositivo es inválido")
		}
		d.EstadoUso = models.UsoInhabilitado
	}

	return nil
}

func tipoEfectivo(d, existente *models.Dispositivo) string {
	if d.Tipo != "" {
		return d.Tipo
	}
	if existente != nil {
		return existente.Tipo
	}
	return ""
}

func merge(v string, existente *models.Dispositivo, get func(*models.Dispositivo) string) string {
	if v != "" {
		return v
	}
	if existente != nil {
		return get(existente)
	}
	return ""
}

// Celda — coordenada de una celda combinada dentro de la grilla.
type Celda struct {
	Row int    `json:"row"`
	Col string `json:"col"`
}

// ValidarPosicion checks grid geometry and capacity for a position write.
// dispositivos is the membership the write would leave in place.
func ValidarPosicion(tx *gorm.DB, p *models.Posicion, dispositivos []uint) error {
	if p.Fila < 1 {
		return invalid("fila", "la fila debe ser un número positivo")
	}
	if !soloLetras(p.Columna) {
		return invalid("columna", "la columna debe contener solo letras")
	}
	if len(dispositivos) > models.MaxDispositivos {
		return invalid("dispositivos", fmt.Sprintf("una posición admite máximo %d dispositivos", models.MaxDispositivos))
	}

	celdas, err := decodeCeldas(p.MergedCells)
	if err != nil {
		return invalid("mergedCells", "formato de celdas combinadas inválido")
	}
	if len(celdas) == 0 {
		return nil
	}

	// overlap contra las demás posiciones del mismo piso y sede
	var otras []models.Posicion
	q := tx.Where("piso = ?", p.Piso)
	if p.SedeID != nil {
		q = q.Where("sede_id = ?", *p.SedeID)
	} else {
		q = q.Where("sede_id IS NULL")
	}
	if p.ID != 0 {
		q = q.Where("id <> ?", p.ID)
	}
	if err := q.Find(&otras).Error; err != nil {
		return err
	}

	ocupadas := map[Celda]uint{}
	for _, o := range otras {
		oc, err := decodeCeldas(o.MergedCells)
		if err != nil {
			continue // legacy rows with malformed geometry don't block writes
		}
		for _, c := range oc {
			ocupadas[c] = o.ID
		}
	}
	for _, c := range celdas {
		if _, tomada := ocupadas[c]; tomada {
			return invalid("mergedCells", fmt.Sprintf("la celda %d-%s ya está ocupada", c.Row, c.Col))
		}
	}
	return nil
}

func decodeCeldas(raw []byte) ([]Celda, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var cs []Celda
	if err := json.Unmarshal(raw, &cs); err != nil {
		return nil, err
	}
	return cs, nil
}

func soloLetras(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// MovimientoDraft — datos mínimos para validar un movimiento antes de crearlo.
type MovimientoDraft struct {
	DispositivoID     uint
	PosicionOrigenID  *uint
	UbicacionOrigen   string
	PosicionDestinoID *uint
	UbicacionDestino  string
}

// ValidarMovimiento: origen ≠ destino, descriptores presentes, cupo del
// destino salvo que el dispositivo ya esté en él.
func ValidarMovimiento(tx *gorm.DB, m *MovimientoDraft) error {
	if m.PosicionOrigenID == nil && m.UbicacionOrigen == "" {
		return invalid("ubicacion_origen", "debe indicar la posición o la ubicación de origen")
	}
	if m.PosicionDestinoID == nil && m.UbicacionDestino == "" {
		return invalid("ubicacion_destino", "debe indicar la posición o la ubicación de destino")
	}
	mismaPosicion := m.PosicionOrigenID != nil && m.PosicionDestinoID != nil && *m.PosicionOrigenID == *m.PosicionDestinoID
	mismaUbicacion := m.PosicionOrigenID == nil && m.PosicionDestinoID == nil && m.UbicacionOrigen == m.UbicacionDestino
	if mismaPosicion || mismaUbicacion {
		return invalid("ubicacion_destino", "la ubicación de origen y destino no pueden ser iguales")
	}
	if err := enEnum("ubicacion_origen", m.UbicacionOrigen, ubicaciones); err != nil {
		return err
	}
	if err := enEnum("ubicacion_destino", m.UbicacionDestino, ubicaciones); err != nil {
		return err
	}

	if m.PosicionDestinoID != nil {
		yaEsta, err := perteneceAPosicion(tx, m.DispositivoID, *m.PosicionDestinoID)
		if err != nil {
			return err
		}
		if !yaEsta {
			n, err := contarDispositivos(tx, *m.PosicionDestinoID)
			if err != nil {
				return err
			}
			if n >= models.MaxDispositivos {
				return invalid("posicion", fmt.Sprintf("la posición destino ya tiene %d dispositivos", models.MaxDispositivos))
			}
		}
	}
	return nil
}
