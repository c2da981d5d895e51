package database

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
)

type MigrationConfig struct {
	MigrationFolderPath string
	Version             uint // 0 migrates to the latest version
	Force               int
	AutoRollback        bool // revert a dirty database to its previous version on failure
}

type MigrationService struct {
	config *MigrationConfig
	logger ectologger.Logger
}

func NewMigrationService(logger ectologger.Logger, config *MigrationConfig) *MigrationService {
	return &MigrationService{
		config: config,
		logger: logger,
	}
}

// migrationLogger adapts ectologger to the migrate.Logger interface.
type migrationLogger struct {
	ectologger.Logger
}

func (l migrationLogger) Verbose() bool { return true }

func (l migrationLogger) Printf(format string, v ...any) {
	l.Infof(format, v...)
}

// Migrate applies the SQL migrations in MigrationFolderPath against the
// given driver. The path is tried as given, then relative to the working
// directory, so the service runs the same from a container or a checkout.
func (ms *MigrationService) Migrate(databaseName string, driver database.Driver) error {
	folder, err := ms.migrationFolder()
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+folder, databaseName, driver)
	if err != nil {
		ms.logger.WithError(err).Error("Failed to create migrate instance")
		return err
	}
	m.Log = migrationLogger{Logger: ms.logger}

	if ms.config.Force != 0 {
		if err := m.Force(ms.config.Force); err != nil {
			ms.logger.WithError(err).Errorf("Failed to force database to version %d", ms.config.Force)
			return err
		}
	}

	before, _, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		ms.logger.WithError(err).Error("Failed to read current migration version")
		before = 0
	}

	start := time.Now()
	if ms.config.Version != 0 {
		err = m.Migrate(ms.config.Version)
	} else {
		err = m.Up()
	}
	ms.logger.Infof("Database migrations completed in %v", time.Since(start))

	return ms.resolve(m, folder, err, before)
}

func (ms *MigrationService) migrationFolder() (string, error) {
	folder := ms.config.MigrationFolderPath
	if _, err := os.Stat(folder); err == nil {
		return folder, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "resolving migration folder")
	}
	folder = filepath.Join(wd, folder)
	if _, err := os.Stat(folder); err != nil {
		return "", errors.Wrapf(err, "migration folder %s does not exist", ms.config.MigrationFolderPath)
	}
	return folder, nil
}

func (ms *MigrationService) resolve(m *migrate.Migrate, folder string, migrationErr error, before uint) error {
	switch {
	case migrationErr == nil:
		ms.logger.Info("Successfully applied migrations")
		return nil
	case migrationErr == migrate.ErrNoChange:
		ms.logger.Info("No new migrations to apply")
		return nil
	}

	// The recorded version can exceed the files on disk after a release
	// rollback. Pin the database to the newest migration that still exists.
	if strings.Contains(migrationErr.Error(), "no migration found for version") {
		latest, err := latestFileVersion(folder)
		if err != nil {
			ms.logger.WithError(err).Error("Failed to determine latest migration version")
			return migrationErr
		}
		ms.logger.Warnf("Recorded version %d has no migration file. Forcing database to version %d", before, latest)
		if err := m.Force(latest); err != nil {
			ms.logger.WithError(err).Errorf("Failed to force database to version %d", latest)
			return err
		}
		return nil
	}

	ms.logger.WithError(migrationErr).Error("Migration failed")

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		ms.logger.WithError(err).Error("Failed to read current migration version")
		return migrationErr
	}

	if ms.config.AutoRollback && dirty {
		if before == 0 {
			before = version - 1
		}
		ms.logger.Warnf("Database is dirty at version %d. Reverting to version %d", version, before)
		if err := m.Force(int(before)); err != nil {
			ms.logger.WithError(err).Errorf("Failed to force database to version %d", before)
			return err
		}
		// Rolled back, but the migration still failed. Surface it so the
		// service does not start against an incomplete schema.
		return migrationErr
	}

	ms.logger.Errorf("Database left dirty=%t at version %d", dirty, version)
	return migrationErr
}

var migrationFilePattern = regexp.MustCompile(`^(\d+)_.*\.up\.sql$`)

func latestFileVersion(folder string) (int, error) {
	files, err := os.ReadDir(folder)
	if err != nil {
		return 0, err
	}

	latest := 0
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		matches := migrationFilePattern.FindStringSubmatch(file.Name())
		if len(matches) < 2 {
			continue
		}
		version, err := strconv.Atoi(matches[1])
		if err != nil {
			return 0, err
		}
		if version > latest {
			latest = version
		}
	}

	if latest == 0 {
		return 0, fmt.Errorf("no migration files in %s", folder)
	}
	return latest, nil
}
