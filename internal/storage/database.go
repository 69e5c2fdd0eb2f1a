package storage

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MarkoPoloResearchLab/sitebuilder/internal/model"
)

const (
	// DriverNameSQLite identifies the SQLite driver implementation.
	DriverNameSQLite = "sqlite"
	// DriverNamePostgres identifies the PostgreSQL driver implementation.
	DriverNamePostgres = "postgres"

	errorMessageMissingDatabaseDriverName = "storage: missing database driver name"
	errorMessageUnsupportedDatabaseDriver = "storage: unsupported database driver"
	errorMessageMissingDataSourceName     = "storage: missing database data source name"
	errorMessageOpenDatabase              = "storage: open database"
	errorMessageOpenSQLiteDatabase        = "storage: open sqlite database"
	errorMessageOpenPostgresDatabase      = "storage: open postgres database"
	errorMessageForeignKeysDisabled       = "storage: sqlite data source disables foreign keys"

	sqliteForeignKeysPragma = "_pragma=foreign_keys(1)"
)

var (
	// ErrMissingDatabaseDriverName indicates the database driver name configuration was omitted.
	ErrMissingDatabaseDriverName = errors.New(errorMessageMissingDatabaseDriverName)
	// ErrUnsupportedDatabaseDriver indicates the provided database driver is not supported.
	ErrUnsupportedDatabaseDriver = errors.New(errorMessageUnsupportedDatabaseDriver)
	// ErrMissingDataSourceName indicates the database data source name configuration was omitted.
	ErrMissingDataSourceName = errors.New(errorMessageMissingDataSourceName)
	// ErrForeignKeysDisabled indicates a SQLite data source that turns off the cascades the schema relies on.
	ErrForeignKeysDisabled = errors.New(errorMessageForeignKeysDisabled)

	sqliteForeignKeysSettingPattern  = regexp.MustCompile(`(?i)foreign_keys\s*[(=]`)
	sqliteForeignKeysDisabledPattern = regexp.MustCompile(`(?i)foreign_keys\s*(\(\s*|=\s*)(0|off|false|no)\b`)
)

type databaseOpener func(Config) (*gorm.DB, error)

var databaseOpeners = map[string]databaseOpener{
	DriverNameSQLite:   openSQLiteDatabase,
	DriverNamePostgres: openPostgresDatabase,
}

// Config captures database connection configuration.
type Config struct {
	DriverName     string
	DataSourceName string
	Logger         logger.Interface
}

// OpenDatabase opens a database connection using the configured driver and data source name.
func OpenDatabase(configuration Config) (*gorm.DB, error) {
	trimmedDriverName := strings.ToLower(strings.TrimSpace(configuration.DriverName))
	if trimmedDriverName == "" {
		return nil, ErrMissingDatabaseDriverName
	}

	opener, driverSupported := databaseOpeners[trimmedDriverName]
	if !driverSupported {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDatabaseDriver, trimmedDriverName)
	}

	database, openErr := opener(Config{
		DriverName:     trimmedDriverName,
		DataSourceName: strings.TrimSpace(configuration.DataSourceName),
		Logger:         configuration.Logger,
	})
	if openErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageOpenDatabase, openErr)
	}

	return database, nil
}

func gormConfig(configuration Config) *gorm.Config {
	gormConfiguration := &gorm.Config{TranslateError: true}
	if configuration.Logger != nil {
		gormConfiguration.Logger = configuration.Logger
	}
	return gormConfiguration
}

// SQLiteForeignKeysDisabled reports whether a SQLite data source explicitly turns foreign key enforcement off.
func SQLiteForeignKeysDisabled(dataSourceName string) bool {
	return sqliteForeignKeysDisabledPattern.MatchString(dataSourceName)
}

// withSQLiteForeignKeys appends the foreign_keys pragma unless the data source already sets it. SQLite
// enforces foreign keys per connection, so the driver has to apply it to every pooled connection.
func withSQLiteForeignKeys(dataSourceName string) (string, error) {
	if SQLiteForeignKeysDisabled(dataSourceName) {
		return "", ErrForeignKeysDisabled
	}
	if sqliteForeignKeysSettingPattern.MatchString(dataSourceName) {
		return dataSourceName, nil
	}
	separator := "?"
	if strings.Contains(dataSourceName, "?") {
		separator = "&"
	}
	return dataSourceName + separator + sqliteForeignKeysPragma, nil
}

func openSQLiteDatabase(configuration Config) (*gorm.DB, error) {
	if configuration.DataSourceName == "" {
		return nil, ErrMissingDataSourceName
	}
	dataSourceName, pragmaErr := withSQLiteForeignKeys(configuration.DataSourceName)
	if pragmaErr != nil {
		return nil, pragmaErr
	}

	database, openErr := gorm.Open(sqlite.Open(dataSourceName), gormConfig(configuration))
	if openErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageOpenSQLiteDatabase, openErr)
	}

	return database, nil
}

func openPostgresDatabase(configuration Config) (*gorm.DB, error) {
	if configuration.DataSourceName == "" {
		return nil, ErrMissingDataSourceName
	}

	database, openErr := gorm.Open(postgres.Open(configuration.DataSourceName), gormConfig(configuration))
	if openErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageOpenPostgresDatabase, openErr)
	}

	return database, nil
}

// AutoMigrate runs database migrations for the storage layer models.
func AutoMigrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&model.Project{},
		&model.SiteVersion{},
		&model.Collaborator{},
		&model.AnalyticsEvent{},
		&model.AnalyticsRollup{},
	); err != nil {
		return err
	}
	return normalizeLegacyProjects(database)
}

// NewID generates a new globally unique identifier.
func NewID() string {
	return uuid.NewString()
}
