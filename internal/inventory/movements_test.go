package inventory

import (
	"errors"
	"fmt"
	"testing"

	"inventario/internal/models"
)

func dispositivoEnPosicion(t *testing.T, svc *Service, sedeID, posID uint, serial string) *models.Dispositivo {
	t.Helper()
	in := entradaMonitor(serial)
	in.Posicion = OptionalUint{Set: true, Value: &posID}
	in.Sede = OptionalUint{Set: true, Value: &sedeID}
	d, err := svc.CrearDispositivo(in, nil)
	if err != nil {
		t.Fatalf("crear %s: %v", serial, err)
	}
	return d
}

func TestMovimientoInmediatoTraslada(t *testing.T) {
	d := testDB(t)
	svc := NewService(d)
	s := crearSede(t, d, "Bogotá")
	p1 := crearPosicion(t, d, s.ID, "P-01")
	p2 := crearPosicion(t, d, s.ID, "P-02")
	disp := dispositivoEnPosicion(t, svc, s.ID, p1.ID, "SN-1")

	mov, err := svc.RegistrarMovimiento(disp.ID, Destino{PosicionID: &p2.ID}, nil, ModoInmediato, "")
	if err != nil {
		t.Fatalf("mover: %v", err)
	}
	if !mov.Confirmado || mov.FechaConfirmacion == nil {
		t.Fatalf("movimiento inmediato sin confirmar: %+v", mov)
	}
	if mov.PosicionOrigenID == nil || *mov.PosicionOrigenID != p1.ID {
		t.Fatalf("origen = %v, esperaba %d", mov.PosicionOrigenID, p1.ID)
	}
	if mov.Observacion == "" {
		t.Fatal("esperaba observación autogenerada")
	}

	var actual models.Dispositivo
	d.First(&actual, disp.ID)
	if actual.PosicionID == nil || *actual.PosicionID != p2.ID {
		t.Fatalf("el dispositivo quedó en %v, esperaba %d", actual.PosicionID, p2.ID)
	}
}

func TestMovimientoMismoOrigenDestino(t *testing.T) {
	d := testDB(t)
	svc := NewService(d)
	s := crearSede(t, d, "Bogotá")
	p := crearPosicion(t, d, s.ID, "P-01")
	disp := dispositivoEnPosicion(t, svc, s.ID, p.ID, "SN-1")

	_, err := svc.RegistrarMovimiento(disp.ID, Destino{PosicionID: &p.ID}, nil, ModoInmediato, "")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("esperaba ValidationError, obtuve %v", err)
	}
}

func TestMovimientoPropuestoNoMueveHastaConfirmar(t *testing.T) {
	d := testDB(t)
	svc := NewService(d)
	s := crearSede(t, d, "Bogotá")
	p1 := crearPosicion(t, d, s.ID, "P-01")
	p2 := crearPosicion(t, d, s.ID, "P-02")
	disp := dispositivoEnPosicion(t, svc, s.ID, p1.ID, "SN-1")

	mov, err := svc.RegistrarMovimiento(disp.ID, Destino{PosicionID: &p2.ID}, nil, ModoPropuesto, "")
	if err != nil {
		t.Fatalf("proponer: %v", err)
	}
	if mov.Confirmado {
		t.Fatal("un movimiento propuesto no puede nacer confirmado")
	}

	var antes models.Dispositivo
	d.First(&antes, disp.ID)
	if antes.PosicionID == nil || *antes.PosicionID != p1.ID {
		t.Fatalf("el dispositivo se movió antes de confirmar: %v", antes.PosicionID)
	}

	conf, err := svc.Confirmar(mov.ID, nil)
	if err != nil {
		t.Fatalf("confirmar: %v", err)
	}
	if !conf.Confirmado || conf.FechaConfirmacion == nil {
		t.Fatalf("confirmación incompleta: %+v", conf)
	}

	var despues models.Dispositivo
	d.First(&despues, disp.ID)
	if despues.PosicionID == nil || *despues.PosicionID != p2.ID {
		t.Fatalf("el dispositivo quedó en %v, esperaba %d", despues.PosicionID, p2.ID)
	}

	if _, err := svc.Confirmar(mov.ID, nil); !errors.Is(err, ErrConflict) {
		t.Fatalf("segunda confirmación: %v, esperaba ErrConflict", err)
	}
}

func TestConfirmarRespetaCupo(t *testing.T) {
	d := testDB(t)
	svc := NewService(d)
	s := crearSede(t, d, "Bogotá")
	p1 := crearPosicion(t, d, s.ID, "P-01")
	p2 := crearPosicion(t, d, s.ID, "P-02")
	disp := dispositivoEnPosicion(t, svc, s.ID, p1.ID, "SN-0")

	mov, err := svc.RegistrarMovimiento(disp.ID, Destino{PosicionID: &p2.ID}, nil, ModoPropuesto, "")
	if err != nil {
		t.Fatalf("proponer: %v", err)
	}

	// el destino se llena entre la propuesta y la confirmación
	for i := 0; i < models.MaxDispositivos; i++ {
		dispositivoEnPosicion(t, svc, s.ID, p2.ID, fmt.Sprintf("SN-%d", i+1))
	}

	_, err = svc.Confirmar(mov.ID, nil)
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "posicion" {
		t.Fatalf("esperaba ValidationError en posicion, obtuve %v", err)
	}
}

func TestRevertirDevuelveAlOrigen(t *testing.T) {
	d := testDB(t)
	svc := NewService(d)
	s := crearSede(t, d, "Bogotá")
	p1 := crearPosicion(t, d, s.ID, "P-01")
	p2 := crearPosicion(t, d, s.ID, "P-02")
	disp := dispositivoEnPosicion(t, svc, s.ID, p1.ID, "SN-1")

	mov, err := svc.RegistrarMovimiento(disp.ID, Destino{PosicionID: &p2.ID}, nil, ModoInmediato, "")
	if err != nil {
		t.Fatalf("mover: %v", err)
	}

	comp, err := svc.Revertir(mov.ID, nil)
	if err != nil {
		t.Fatalf("revertir: %v", err)
	}
	if comp.PosicionOrigenID == nil || *comp.PosicionOrigenID != p2.ID ||
		comp.PosicionDestinoID == nil || *comp.PosicionDestinoID != p1.ID {
		t.Fatalf("la compensación no intercambió extremos: %+v", comp)
	}

	var actual models.Dispositivo
	d.First(&actual, disp.ID)
	if actual.PosicionID == nil || *actual.PosicionID != p1.ID {
		t.Fatalf("el dispositivo quedó en %v, esperaba %d", actual.PosicionID, p1.ID)
	}

	var reversiones int64
	d.Model(&models.Historial{}).Where("tipo_cambio = ?", models.CambioReversion).Count(&reversiones)
	if reversiones != 1 {
		t.Fatalf("filas REVERSION = %d, esperaba 1", reversiones)
	}

	// el original sigue intacto en la bitácora
	var original models.Movimiento
	if err := d.First(&original, mov.ID).Error; err != nil {
		t.Fatalf("movimiento original: %v", err)
	}
	if original.PosicionDestinoID == nil || *original.PosicionDestinoID != p2.ID {
		t.Fatalf("el original fue alterado: %+v", original)
	}
}

func TestRevertirSinPosicionDestino(t *testing.T) {
	d := testDB(t)
	svc := NewService(d)
	s := crearSede(t, d, "Bogotá")
	p1 := crearPosicion(t, d, s.ID, "P-01")
	disp := dispositivoEnPosicion(t, svc, s.ID, p1.ID, "SN-1")

	mov, err := svc.RegistrarMovimiento(disp.ID, Destino{Ubicacion: models.UbicacionCasa}, nil, ModoInmediato, "")
	if err != nil {
		t.Fatalf("mover: %v", err)
	}
	_, err = svc.Revertir(mov.ID, nil)
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "posicion_destino" {
		t.Fatalf("esperaba ValidationError en posicion_destino, obtuve %v", err)
	}
}
