package utils

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm"

	dbTypes "github.com/DefiantLabs/token-relayer/db"
)

type TestDockerDBConfig struct {
	GormDB   *gorm.DB
	Host     string
	Port     string
	Database string
	User     string
	Password string
	Clean    func()
}

// DSN is the connection string pgxpool expects.
func (c *TestDockerDBConfig) DSN() string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Database)
}

// Pool opens a pgx pool on the test database. It is closed by Clean.
func (c *TestDockerDBConfig) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, c.DSN())
	if err != nil {
		return nil, err
	}
	clean := c.Clean
	c.Clean = func() {
		pool.Close()
		clean()
	}
	return pool, nil
}

func SetupTestDatabase() (*TestDockerDBConfig, error) {
	pool, err := newPool()
	if err != nil {
		return nil, err
	}

	databaseName := "test"
	user := "test"
	password := "test"

	resource, clean, err := runContainer(pool, "postgres", "postgres", "15-alpine", []string{
		fmt.Sprintf("POSTGRES_USER=%s", user),
		fmt.Sprintf("POSTGRES_PASSWORD=%s", password),
		fmt.Sprintf("POSTGRES_DB=%s", databaseName),
	})
	if err != nil {
		return nil, err
	}

	var db *gorm.DB
	host := resource.GetBoundIP("5432/tcp")
	port := resource.GetPort("5432/tcp")

	if err := pool.Retry(func() error {
		var err error
		db, err = dbTypes.PostgresDbConnect(host, port, databaseName, user, password, "silent")
		if err != nil {
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Ping()
	}); err != nil {
		_ = clean()
		return nil, err
	}

	return &TestDockerDBConfig{
		GormDB:   db,
		Host:     host,
		Port:     port,
		Database: databaseName,
		User:     user,
		Password: password,
		Clean:    mustClean(clean),
	}, nil
}

type TestRedisConfig struct {
	Client *redis.Client
	Addr   string
	Clean  func()
}

func SetupTestRedis() (*TestRedisConfig, error) {
	pool, err := newPool()
	if err != nil {
		return nil, err
	}

	resource, clean, err := runContainer(pool, "redis", "redis", "7-alpine", nil)
	if err != nil {
		return nil, err
	}

	addr := fmt.Sprintf("%s:%s", resource.GetBoundIP("6379/tcp"), resource.GetPort("6379/tcp"))
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := pool.Retry(func() error {
		return client.Ping(context.Background()).Err()
	}); err != nil {
		_ = clean()
		return nil, err
	}

	return &TestRedisConfig{
		Client: client,
		Addr:   addr,
		Clean: mustClean(func() error {
			_ = client.Close()
			return clean()
		}),
	}, nil
}

type TestMongoConfig struct {
	Client *mongo.Client
	URI    string
	Clean  func()
}

func SetupTestMongo() (*TestMongoConfig, error) {
	pool, err := newPool()
	if err != nil {
		return nil, err
	}

	resource, clean, err := runContainer(pool, "mongo", "mongo", "7", nil)
	if err != nil {
		return nil, err
	}

	uri := fmt.Sprintf("mongodb://%s:%s", resource.GetBoundIP("27017/tcp"), resource.GetPort("27017/tcp"))
	var client *mongo.Client
	if err := pool.Retry(func() error {
		var err error
		client, err = mongo.Connect(context.Background(), options.Client().ApplyURI(uri))
		if err != nil {
			return err
		}
		return client.Ping(context.Background(), nil)
	}); err != nil {
		_ = clean()
		return nil, err
	}

	return &TestMongoConfig{
		Client: client,
		URI:    uri,
		Clean: mustClean(func() error {
			_ = client.Disconnect(context.Background())
			return clean()
		}),
	}, nil
}

func mustClean(clean func() error) func() {
	return func() {
		if err := clean(); err != nil {
			log.Fatalf("Could not clean test container: %s", err)
		}
	}
}
