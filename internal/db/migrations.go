// internal/db/migrations.go
package db

import (
	"fmt"

	"gorm.io/gorm"
)

// MigrateIndicesUnicos creates the unique indexes AutoMigrate can't express:
// soft-delete aware uniqueness for serial/placa_cu and the single-VIGENTE
// constraint for external assignments.
func MigrateIndicesUnicos(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	dialect := db.Dialector.Name()

	switch dialect {
	case "postgres", "sqlite":
		// partial unique indexes (куда лучше для soft-delete)
		stmts := []string{
			`CREATE UNIQUE INDEX IF NOT EXISTS ux_dispositivos_serial ON dispositivos (serial) WHERE deleted_at IS NULL`,
			`CREATE UNIQUE INDEX IF NOT EXISTS ux_dispositivos_placa ON dispositivos (placa_cu) WHERE deleted_at IS NULL AND placa_cu IS NOT NULL`,
			`CREATE UNIQUE INDEX IF NOT EXISTS ux_asignaciones_vigente ON asignacion_externas (dispositivo_id) WHERE estado = 'VIGENTE' AND deleted_at IS NULL`,
		}
		for _, s := range stmts {
			if err := db.Exec(s).Error; err != nil {
				return fmt.Errorf("unique index: %w", err)
			}
		}
		return nil

	case "mysql":
		// MySQL has no partial indexes: composite fallback for soft deletes;
		// the VIGENTE invariant is enforced in-transaction (externos.Service).
		_ = db.Exec("CREATE UNIQUE INDEX `ux_dispositivos_serial_del` ON `dispositivos` (`serial`, `deleted_at`)").Error
		_ = db.Exec("CREATE UNIQUE INDEX `ux_dispositivos_placa_del` ON `dispositivos` (`placa_cu`, `deleted_at`)").Error
		_ = db.Exec("CREATE INDEX `idx_asignaciones_estado` ON `asignacion_externas` (`dispositivo_id`, `estado`)").Error
		return nil

	default:
		return fmt.Errorf("unsupported dialect: %s", dialect)
	}
}
