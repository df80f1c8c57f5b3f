package sedes

import (
	"errors"
	"testing"

	"inventario/internal/inventory"
	"inventario/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	d, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := d.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := d.AutoMigrate(
		&models.Sede{}, &models.Servicio{}, &models.ServicioSede{},
		&models.Posicion{}, &models.Dispositivo{}, &models.PosicionDispositivo{},
		&models.Usuario{}, &models.UsuarioSede{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return d
}

func TestGuardarSedeObligaNombre(t *testing.T) {
	repo := NewRepo(testDB(t))

	_, err := repo.GuardarSede(0, SedeInput{Ciudad: "Bogotá"})
	var ve *inventory.ValidationError
	if !errors.As(err, &ve) || ve.Field != "nombre" {
		t.Fatalf("esperaba ValidationError en nombre, obtuve %v", err)
	}
}

func TestEliminarSedeArrastraPosicionesYDesanclaDispositivos(t *testing.T) {
	d := testDB(t)
	repo := NewRepo(d)

	sede, err := repo.GuardarSede(0, SedeInput{Nombre: "Bogotá"})
	if err != nil {
		t.Fatalf("crear sede: %v", err)
	}
	pos := models.Posicion{Nombre: "P-01", Fila: 1, Columna: "A", Piso: "1", SedeID: &sede.ID}
	if err := d.Create(&pos).Error; err != nil {
		t.Fatalf("crear posición: %v", err)
	}
	piso := "1"
	disp := models.Dispositivo{
		Tipo: models.TipoMonitor, Marca: "DELL", Modelo: "P2419H", Serial: "SN-1",
		SedeID: &sede.ID, PosicionID: &pos.ID, Piso: &piso,
	}
	if err := d.Create(&disp).Error; err != nil {
		t.Fatalf("crear dispositivo: %v", err)
	}
	if err := d.Create(&models.PosicionDispositivo{PosicionID: pos.ID, DispositivoID: disp.ID}).Error; err != nil {
		t.Fatalf("crear membresía: %v", err)
	}

	if err := repo.EliminarSede(sede.ID); err != nil {
		t.Fatalf("eliminar sede: %v", err)
	}

	if _, err := repo.ObtenerSede(sede.ID); !errors.Is(err, inventory.ErrNotFound) {
		t.Fatalf("la sede sigue existiendo: %v", err)
	}
	var posiciones int64
	d.Model(&models.Posicion{}).Where("sede_id = ?", sede.ID).Count(&posiciones)
	if posiciones != 0 {
		t.Fatalf("posiciones residuales: %d", posiciones)
	}

	var huerfano models.Dispositivo
	if err := d.First(&huerfano, disp.ID).Error; err != nil {
		t.Fatalf("el dispositivo debe sobrevivir: %v", err)
	}
	if huerfano.SedeID != nil || huerfano.PosicionID != nil || huerfano.Piso != nil {
		t.Fatalf("dispositivo aún anclado: sede=%v posicion=%v piso=%v",
			huerfano.SedeID, huerfano.PosicionID, huerfano.Piso)
	}
	var miembros int64
	d.Model(&models.PosicionDispositivo{}).Where("dispositivo_id = ?", disp.ID).Count(&miembros)
	if miembros != 0 {
		t.Fatalf("membresías residuales: %d", miembros)
	}
}

func TestGuardarServicioConSedes(t *testing.T) {
	d := testDB(t)
	repo := NewRepo(d)

	sede, err := repo.GuardarSede(0, SedeInput{Nombre: "Bogotá"})
	if err != nil {
		t.Fatalf("crear sede: %v", err)
	}

	svc, err := repo.GuardarServicio(0, ServicioInput{Nombre: "Cardiología", Color: "#FF0000", Sedes: []uint{sede.ID}})
	if err != nil {
		t.Fatalf("crear servicio: %v", err)
	}
	ids, err := repo.SedesDeServicio(svc.ID)
	if err != nil {
		t.Fatalf("sedes de servicio: %v", err)
	}
	if len(ids) != 1 || ids[0] != sede.ID {
		t.Fatalf("sedes = %v, esperaba [%d]", ids, sede.ID)
	}

	// sede inexistente rechazada
	_, err = repo.GuardarServicio(0, ServicioInput{Nombre: "Urgencias", Sedes: []uint{999}})
	var ve *inventory.ValidationError
	if !errors.As(err, &ve) || ve.Field != "sedes" {
		t.Fatalf("esperaba ValidationError en sedes, obtuve %v", err)
	}
}

func TestEliminarServicioRestauraColor(t *testing.T) {
	d := testDB(t)
	repo := NewRepo(d)

	svc, err := repo.GuardarServicio(0, ServicioInput{Nombre: "Cardiología", Color: "#FF0000"})
	if err != nil {
		t.Fatalf("crear servicio: %v", err)
	}
	pos := models.Posicion{
		Nombre: "P-01", Fila: 1, Columna: "A", Piso: "1",
		ServicioID: &svc.ID, Color: "#FF0000", ColorOriginal: "#00FF00",
	}
	if err := d.Create(&pos).Error; err != nil {
		t.Fatalf("crear posición: %v", err)
	}

	if err := repo.EliminarServicio(svc.ID); err != nil {
		t.Fatalf("eliminar servicio: %v", err)
	}

	var suelta models.Posicion
	d.First(&suelta, pos.ID)
	if suelta.ServicioID != nil {
		t.Fatalf("la posición sigue atada al servicio: %v", suelta.ServicioID)
	}
	if suelta.Color != "#00FF00" {
		t.Fatalf("color = %q, esperaba el original #00FF00", suelta.Color)
	}
}
