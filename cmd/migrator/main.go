package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/linemk/farm-shop/internal/config"
)

// buildMigrateDSN собирает строку подключения (DSN) из отдельных параметров
func buildMigrateDSN(dbCfg config.DatabaseConfig, migrationTable string, dbPassword string) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable&x-migrations-table=%s",
		dbCfg.User, dbPassword, dbCfg.Host, dbCfg.Port, dbCfg.Name, migrationTable,
	)
}

// buildQueryDSN собирает DSN для обычных SQL запросов
func buildQueryDSN(dbCfg config.DatabaseConfig, dbPassword string) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		dbCfg.User, dbPassword, dbCfg.Host, dbCfg.Port, dbCfg.Name,
	)
}

// migrator: часть *migrate.Migrate, которой пользуется applyMigrations
type migrator interface {
	Up() error
	Steps(n int) error
}

// applyMigrations накатывает все новые миграции, либо steps штук вперёд,
// либо при down откатывает steps последних (по умолчанию одну).
func applyMigrations(m migrator, down bool, steps int) (string, error) {
	if steps < 0 {
		return "", fmt.Errorf("steps must be non-negative, got %d", steps)
	}

	var err error
	switch {
	case down:
		if steps == 0 {
			steps = 1
		}
		err = m.Steps(-steps)
	case steps > 0:
		err = m.Steps(steps)
	default:
		err = m.Up()
	}

	if errors.Is(err, migrate.ErrNoChange) {
		return "No migrations to apply", nil
	}
	if err != nil {
		return "", err
	}
	if down {
		return fmt.Sprintf("Rolled back %d migration(s)", steps), nil
	}
	return "Migrations applied successfully", nil
}

func main() {
	var migrationsPathFlag, configPath string
	var down bool
	var steps int
	flag.StringVar(&migrationsPathFlag, "migrations-path", "", "path to migration files")
	flag.BoolVar(&down, "down", false, "roll back instead of applying")
	flag.IntVar(&steps, "steps", 0, "number of migrations to apply or roll back (0: all up, 1 down)")
	// config.MustLoad сам вызывает flag.Parse, поэтому флаг config объявляем здесь
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	if configPath == "" {
		configPath = GetEnv("CONFIG_PATH", "")
	}
	if configPath == "" {
		log.Fatal("CONFIG_PATH not exists")
	}
	cfg := config.MustLoadByPath(configPath)

	migrationsPath := cfg.Migrations.Path
	if migrationsPathFlag != "" {
		migrationsPath = migrationsPathFlag
	}

	dbPassword := ""
	if dbPassword = GetEnv("DB_PASSWORD", ""); dbPassword == "" {
		log.Fatal("DB_PASSWORD environment variable is required")
	}

	migrationTableName := "migrations"

	dsnForMigrate := buildMigrateDSN(cfg.Database, migrationTableName, dbPassword)
	log.Printf("Applying migrations from %s to %s:%d/%s", migrationsPath, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)

	// Создаем объект мигратора
	m, err := migrate.New(
		"file://"+migrationsPath,
		dsnForMigrate,
	)
	if err != nil {
		log.Fatalf("failed to create migrate instance: %v", err)
	}

	result, err := applyMigrations(m, down, steps)
	if err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.Println(result)
	if version, dirty, err := m.Version(); err == nil {
		log.Printf("Schema version: %d (dirty: %t)", version, dirty)
	}

	dsnForQuery := buildQueryDSN(cfg.Database, dbPassword)

	db, err := sql.Open("postgres", dsnForQuery)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT table_name 
		FROM information_schema.tables 
		WHERE table_schema = 'public'
		ORDER BY table_name
	`)
	if err != nil {
		log.Fatalf("failed to query tables: %v", err)
	}
	defer rows.Close()

	fmt.Println("Current tables in the database:")
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			log.Fatalf("failed to scan row: %v", err)
		}
		fmt.Println(" -", tableName)
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("error reading rows: %v", err)
	}
}

func GetEnv(key, defaultValue string) string {
	if value, exists := lookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Обертка для os.LookupEnv, чтобы можно было легко подменить в тестах
func lookupEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}
