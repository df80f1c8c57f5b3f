package auth

import (
	"errors"
	"testing"
	"time"

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
		&models.Sede{}, &models.Usuario{}, &models.UsuarioSede{}, &models.Historial{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return d
}

func testService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	d := testDB(t)
	return NewService(d, "secreto-de-prueba", 15*time.Minute, 24*time.Hour), d
}

func TestRegistrarYLogin(t *testing.T) {
	svc, _ := testService(t)

	u, err := svc.Registrar(RegistroInput{
		Username: "aruiz", Nombre: "Ana Ruiz", Email: "ana@example.com",
		Password: "contraseña-larga", Rol: models.RolAdmin,
	})
	if err != nil {
		t.Fatalf("registrar: %v", err)
	}
	if u.PasswordHash == "contraseña-larga" {
		t.Fatal("la contraseña quedó en claro")
	}

	pair, err := svc.Login("aruiz", "contraseña-larga", nil)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := svc.Validar(pair.Access, "access")
	if err != nil {
		t.Fatalf("validar access: %v", err)
	}
	if claims.UserID != u.ID || claims.Rol != models.RolAdmin {
		t.Fatalf("claims = %+v", claims)
	}

	// el refresh no sirve como access
	if _, err := svc.Validar(pair.Refresh, "access"); err == nil {
		t.Fatal("un refresh no debe validar como access")
	}
}

func TestLoginCredencialesInvalidas(t *testing.T) {
	svc, _ := testService(t)

	if _, err := svc.Registrar(RegistroInput{Username: "aruiz", Password: "contraseña-larga"}); err != nil {
		t.Fatalf("registrar: %v", err)
	}
	if _, err := svc.Login("aruiz", "otra-cosa", nil); !errors.Is(err, ErrCredenciales) {
		t.Fatalf("password errada: %v", err)
	}
	if _, err := svc.Login("nadie", "contraseña-larga", nil); !errors.Is(err, ErrCredenciales) {
		t.Fatalf("usuario inexistente: %v", err)
	}
}

func TestLoginUsuarioInactivo(t *testing.T) {
	svc, d := testService(t)

	u, err := svc.Registrar(RegistroInput{Username: "aruiz", Password: "contraseña-larga"})
	if err != nil {
		t.Fatalf("registrar: %v", err)
	}
	d.Model(u).Update("activo", false)

	if _, err := svc.Login("aruiz", "contraseña-larga", nil); !errors.Is(err, ErrCredenciales) {
		t.Fatalf("usuario inactivo: %v", err)
	}
}

func TestLoginSedeNoAsignada(t *testing.T) {
	svc, d := testService(t)

	sede := models.Sede{Nombre: "Bogotá"}
	if err := d.Create(&sede).Error; err != nil {
		t.Fatalf("crear sede: %v", err)
	}
	if _, err := svc.Registrar(RegistroInput{
		Username: "coord", Password: "contraseña-larga", Rol: models.RolCoordinador,
	}); err != nil {
		t.Fatalf("registrar: %v", err)
	}

	_, err := svc.Login("coord", "contraseña-larga", &sede.ID)
	var ve *inventory.ValidationError
	if !errors.As(err, &ve) || ve.Field != "sede_id" {
		t.Fatalf("esperaba ValidationError en sede_id, obtuve %v", err)
	}
}

func TestLoginDejaUnaSolaFilaEnVentana(t *testing.T) {
	svc, d := testService(t)

	if _, err := svc.Registrar(RegistroInput{Username: "aruiz", Password: "contraseña-larga"}); err != nil {
		t.Fatalf("registrar: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := svc.Login("aruiz", "contraseña-larga", nil); err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
	}

	var n int64
	d.Model(&models.Historial{}).Where("tipo_cambio = ?", models.CambioLogin).Count(&n)
	if n != 1 {
		t.Fatalf("filas LOGIN = %d, esperaba 1 dentro de la ventana", n)
	}
}

func TestRefrescar(t *testing.T) {
	svc, _ := testService(t)

	if _, err := svc.Registrar(RegistroInput{Username: "aruiz", Password: "contraseña-larga"}); err != nil {
		t.Fatalf("registrar: %v", err)
	}
	pair, err := svc.Login("aruiz", "contraseña-larga", nil)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	access, err := svc.Refrescar(pair.Refresh)
	if err != nil {
		t.Fatalf("refrescar: %v", err)
	}
	if _, err := svc.Validar(access, "access"); err != nil {
		t.Fatalf("validar access refrescado: %v", err)
	}

	// un access no sirve para refrescar
	if _, err := svc.Refrescar(pair.Access); !errors.Is(err, ErrCredenciales) {
		t.Fatalf("refrescar con access: %v", err)
	}
}

func TestRegistrarPasswordCorta(t *testing.T) {
	svc, _ := testService(t)

	_, err := svc.Registrar(RegistroInput{Username: "aruiz", Password: "corta"})
	var ve *inventory.ValidationError
	if !errors.As(err, &ve) || ve.Field != "password" {
		t.Fatalf("esperaba ValidationError en password, obtuve %v", err)
	}
}
