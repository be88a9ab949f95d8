// migrate.go — применение SQL-миграций при старте через golang-migrate.
// Миграции встроены в бинарник (embed.FS), отдельного контейнера-мигратора нет.
package repository

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // драйвер pgx5
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate применяет все доступные up-миграции к базе данных.
// databaseURL — postgres:// URL; преобразуется в pgx5:// для драйвера migrate.
// Отсутствие новых миграций (ErrNoChange) не является ошибкой.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка чтения встроенных миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, pgxURL(databaseURL))
	if err != nil {
		return fmt.Errorf("ошибка инициализации мигратора: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}
	return nil
}

// pgxURL переводит postgres:// URL в схему pgx5://, которую ожидает
// драйвер golang-migrate.
func pgxURL(databaseURL string) string {
	const (
		pgScheme   = "postgres://"
		pgqlScheme = "postgresql://"
	)
	switch {
	case len(databaseURL) > len(pgScheme) && databaseURL[:len(pgScheme)] == pgScheme:
		return "pgx5://" + databaseURL[len(pgScheme):]
	case len(databaseURL) > len(pgqlScheme) && databaseURL[:len(pgqlScheme)] == pgqlScheme:
		return "pgx5://" + databaseURL[len(pgqlScheme):]
	default:
		return databaseURL
	}
}
