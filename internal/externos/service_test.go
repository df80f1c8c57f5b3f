package externos

import (
	"errors"
	"testing"

	idb "inventario/internal/db"
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
		&models.Sede{}, &models.Posicion{}, &models.Dispositivo{}, &models.PosicionDispositivo{},
		&models.Movimiento{}, &models.Historial{},
		&models.Usuario{}, &models.UsuarioExterno{},
		&models.AsignacionExterna{}, &models.RegistroAsignacion{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if err := idb.MigrateIndicesUnicos(d); err != nil {
		t.Fatalf("índices únicos: %v", err)
	}
	return d
}

func sembrar(t *testing.T, d *gorm.DB) (*models.Dispositivo, *models.UsuarioExterno) {
	t.Helper()
	disp := models.Dispositivo{
		Tipo: models.TipoPortatil, Marca: "DELL", Modelo: "Latitude", Serial: "SN-1",
		EstadoUso: models.UsoDisponible, Ubicacion: models.UbicacionSede,
	}
	if err := d.Create(&disp).Error; err != nil {
		t.Fatalf("crear dispositivo: %v", err)
	}
	ext := models.UsuarioExterno{Nombre: "Ana Ruiz", Documento: "CC-100", Empresa: "Acme"}
	if err := d.Create(&ext).Error; err != nil {
		t.Fatalf("crear externo: %v", err)
	}
	return &disp, &ext
}

func TestAsignarYDevolver(t *testing.T) {
	d := testDB(t)
	svc := NewService(d)
	disp, ext := sembrar(t, d)

	a, err := svc.Asignar(AsignarInput{DispositivoID: disp.ID, UsuarioExternoID: ext.ID}, nil)
	if err != nil {
		t.Fatalf("asignar: %v", err)
	}
	if a.Estado != models.AsignacionVigente {
		t.Fatalf("estado = %q, esperaba VIGENTE", a.Estado)
	}

	var enUso models.Dispositivo
	d.First(&enUso, disp.ID)
	if enUso.EstadoUso != models.UsoEnUso || enUso.Ubicacion != models.UbicacionCliente {
		t.Fatalf("efectos de asignación: uso=%q ubicacion=%q", enUso.EstadoUso, enUso.Ubicacion)
	}

	a, err = svc.Devolver(a.ID, nil)
	if err != nil {
		t.Fatalf("devolver: %v", err)
	}
	if a.Estado != models.AsignacionDevuelta || a.FechaDevolucion == nil {
		t.Fatalf("devolución incompleta: %+v", a)
	}

	var devuelto models.Dispositivo
	d.First(&devuelto, disp.ID)
	if devuelto.EstadoUso != models.UsoDisponible || devuelto.Ubicacion != models.UbicacionSede {
		t.Fatalf("efectos de devolución: uso=%q ubicacion=%q", devuelto.EstadoUso, devuelto.Ubicacion)
	}

	regs, err := svc.ListarRegistros(disp.ID)
	if err != nil {
		t.Fatalf("registros: %v", err)
	}
	if len(regs) != 2 || regs[0].Tipo != models.RegistroSalida || regs[1].Tipo != models.RegistroEntrada {
		t.Fatalf("bitácora = %+v, esperaba [SALIDA ENTRADA]", regs)
	}
}

func TestAsignacionVigenteUnica(t *testing.T) {
	d := testDB(t)
	svc := NewService(d)
	disp, ext := sembrar(t, d)

	if _, err := svc.Asignar(AsignarInput{DispositivoID: disp.ID, UsuarioExternoID: ext.ID}, nil); err != nil {
		t.Fatalf("asignar: %v", err)
	}
	_, err := svc.Asignar(AsignarInput{DispositivoID: disp.ID, UsuarioExternoID: ext.ID}, nil)
	if !errors.Is(err, inventory.ErrConflict) {
		t.Fatalf("segunda asignación: %v, esperaba ErrConflict", err)
	}
}

func TestDevolverDosVeces(t *testing.T) {
	d := testDB(t)
	svc := NewService(d)
	disp, ext := sembrar(t, d)

	a, err := svc.Asignar(AsignarInput{DispositivoID: disp.ID, UsuarioExternoID: ext.ID}, nil)
	if err != nil {
		t.Fatalf("asignar: %v", err)
	}
	if _, err := svc.Devolver(a.ID, nil); err != nil {
		t.Fatalf("devolver: %v", err)
	}
	if _, err := svc.Devolver(a.ID, nil); !errors.Is(err, inventory.ErrConflict) {
		t.Fatalf("segunda devolución: %v, esperaba ErrConflict", err)
	}
}

func TestVencerLiberaDispositivo(t *testing.T) {
	d := testDB(t)
	svc := NewService(d)
	disp, ext := sembrar(t, d)

	a, err := svc.Asignar(AsignarInput{DispositivoID: disp.ID, UsuarioExternoID: ext.ID}, nil)
	if err != nil {
		t.Fatalf("asignar: %v", err)
	}
	a, err = svc.Vencer(a.ID, nil)
	if err != nil {
		t.Fatalf("vencer: %v", err)
	}
	if a.Estado != models.AsignacionVencida {
		t.Fatalf("estado = %q, esperaba VENCIDO", a.Estado)
	}

	// tras vencer, el dispositivo queda disponible para otro préstamo
	if _, err := svc.Asignar(AsignarInput{DispositivoID: disp.ID, UsuarioExternoID: ext.ID}, nil); err != nil {
		t.Fatalf("reasignar tras vencimiento: %v", err)
	}
}

func TestAlternanciaEstricta(t *testing.T) {
	d := testDB(t)
	svc := NewService(d)
	disp, ext := sembrar(t, d)

	a, err := svc.Asignar(AsignarInput{DispositivoID: disp.ID, UsuarioExternoID: ext.ID}, nil)
	if err != nil {
		t.Fatalf("asignar: %v", err)
	}

	// dos SALIDA seguidas para el mismo dispositivo
	err = d.Transaction(func(tx *gorm.DB) error {
		return anotarRegistro(tx, a.ID, disp.ID, models.RegistroSalida)
	})
	if !errors.Is(err, inventory.ErrConflict) {
		t.Fatalf("doble SALIDA: %v, esperaba ErrConflict", err)
	}

	// ENTRADA sin SALIDA previa en otro dispositivo
	otro := models.Dispositivo{Tipo: models.TipoMonitor, Marca: "HP", Modelo: "P201", Serial: "SN-2"}
	if err := d.Create(&otro).Error; err != nil {
		t.Fatalf("crear otro: %v", err)
	}
	err = d.Transaction(func(tx *gorm.DB) error {
		return anotarRegistro(tx, a.ID, otro.ID, models.RegistroEntrada)
	})
	if !errors.Is(err, inventory.ErrConflict) {
		t.Fatalf("ENTRADA sin SALIDA: %v, esperaba ErrConflict", err)
	}
}

func TestAsignarDispositivoInhabilitado(t *testing.T) {
	d := testDB(t)
	svc := NewService(d)
	disp, ext := sembrar(t, d)
	d.Model(disp).Update("estado_uso", models.UsoInhabilitado)

	_, err := svc.Asignar(AsignarInput{DispositivoID: disp.ID, UsuarioExternoID: ext.ID}, nil)
	var ve *inventory.ValidationError
	if !errors.As(err, &ve) || ve.Field != "dispositivo" {
		t.Fatalf("esperaba ValidationError en dispositivo, obtuve %v", err)
	}
}

func TestDocumentoDuplicado(t *testing.T) {
	d := testDB(t)
	svc := NewService(d)

	if _, err := svc.GuardarUsuarioExterno(0, UsuarioExternoInput{Nombre: "Ana", Documento: "CC-1"}); err != nil {
		t.Fatalf("crear: %v", err)
	}
	_, err := svc.GuardarUsuarioExterno(0, UsuarioExternoInput{Nombre: "Eva", Documento: "CC-1"})
	var ve *inventory.ValidationError
	if !errors.As(err, &ve) || ve.Field != "documento" {
		t.Fatalf("esperaba ValidationError en documento, obtuve %v", err)
	}
}
