package server

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inventario/config"
	"inventario/internal/auth"
	"inventario/internal/db"
	"inventario/internal/externos"
	"inventario/internal/health"
	"inventario/internal/inventory"
	"inventario/internal/logs"
	"inventario/internal/middleware"
	"inventario/internal/models"
	"inventario/internal/sedes"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type App struct {
	cfg        *config.Config
	Router     *mux.Router
	httpServer *http.Server

	db     *gorm.DB
	ctx    context.Context
	cancel context.CancelFunc
}

func (a *App) Initialize(cfg *config.Config) {
	a.cfg = cfg

	logs.Init(logs.Options{
		Level:  a.cfg.Logging.Level,
		Format: a.cfg.Logging.Format,
		File:   a.cfg.Logging.File,
	})

	d, err := db.Open(a.cfg.Database.Driver, a.cfg.Database.DSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	a.db = d

	if err := a.db.AutoMigrate(
		// organización
		&models.Sede{},
		&models.Servicio{},
		&models.ServicioSede{},

		// inventario
		&models.Posicion{},
		&models.Dispositivo{},
		&models.PosicionDispositivo{},

		// movimientos e historial
		&models.Movimiento{},
		&models.Historial{},

		// usuarios y préstamos externos
		&models.Usuario{},
		&models.UsuarioSede{},
		&models.UsuarioExterno{},
		&models.AsignacionExterna{},
		&models.RegistroAsignacion{},
	); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}
	if err := db.MigrateIndicesUnicos(a.db); err != nil {
		logs.Logger.Warnf("índices únicos: %v", err)
	}

	a.Router = mux.NewRouter()
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(middleware.LoggerMW)

	health.RegisterRoutesWithDB(a.Router, a.db)

	authSvc := auth.NewService(a.db, a.cfg.Auth.JWTSecret, a.cfg.Auth.AccessTTL, a.cfg.Auth.RefreshTTL)
	authHTTP := auth.NewHTTP(authSvc)
	a.Router.Use(authHTTP.Middleware)
	authHTTP.RegisterRoutes(a.Router)

	invSvc := inventory.NewService(a.db)
	invRepo := inventory.NewRepo(a.db)
	inventory.NewHTTP(invSvc, invRepo).RegisterRoutes(a.Router)

	sedes.NewHTTP(sedes.NewRepo(a.db)).RegisterRoutes(a.Router)
	externos.NewHTTP(externos.NewService(a.db)).RegisterRoutes(a.Router)

	a.Router.Walk(func(rt *mux.Route, r *mux.Router, ancestors []*mux.Route) error {
		path, _ := rt.GetPathTemplate()
		methods, _ := rt.GetMethods()
		log.Printf("route: %-6v %s", methods, path)
		return nil
	})
}

func (a *App) Run() error {
	if a.Router == nil || a.cfg == nil {
		return ErrNotInitialized
	}
	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)

	a.ctx, a.cancel = context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sigs; a.cancel() }()

	a.httpServer = &http.Server{
		Addr:         bind,
		Handler:      a.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-a.ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.httpServer.Shutdown(ctx)
	return nil
}

var ErrNotInitialized = &initError{"server not initialized (call Initialize(cfg) first)"}

type initError struct{ s string }

func (e *initError) Error() string { return e.s }
