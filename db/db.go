package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DefiantLabs/token-relayer/db/models"
)

var ErrNotFound = errors.New("not found")

func dsn(host string, port string, database string, user string, password string) string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=disable", host, port, database, user, password)
}

// PostgresDbConnect connects to the database according to the passed in parameters
func PostgresDbConnect(host string, port string, database string, user string, password string, level string) (*gorm.DB, error) {
	gormLogLevel := logger.Silent

	switch level {
	case "info":
		gormLogLevel = logger.Info
	case "warn":
		gormLogLevel = logger.Warn
	case "error":
		gormLogLevel = logger.Error
	}
	return gorm.Open(postgres.Open(dsn(host, port, database, user, password)), &gorm.Config{Logger: logger.Default.LogMode(gormLogLevel)})
}

// PostgresPool opens the pgx pool used by the read-side repositories.
func PostgresPool(ctx context.Context, host string, port string, database string, user string, password string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn(host, port, database, user, password))
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// MigrateModels runs the gorm automigrations with all the db models. This will migrate as needed and do nothing if nothing has changed.
func MigrateModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Transaction{},
		&models.Token{},
	)
}

// IsUniqueViolation reports whether err is postgres rejecting a duplicate key.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
