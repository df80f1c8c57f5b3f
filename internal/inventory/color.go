package inventory

import "inventario/internal/models"

const colorPorDefecto = "#FFFFFF"

// ColorDesdeServicio derives the display color a position takes from its
// assigned service. Pure function, invoked by the position write path.
func ColorDesdeServicio(s *models.Servicio) string {
	if s == nil || s.Color == "" {
		return colorPorDefecto
	}
	return s.Color
}
