package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/qjdesk/complaint-desk/internal/config"
)

// Options carries the connection parameters.
type Options struct {
	User, Pass, Host, Port, Name string
	MaxOpenConns                 int
	Timeout                      time.Duration // dial/read/write and ping budget
}

// OptionsFrom picks the DB_* settings out of cfg.
func OptionsFrom(cfg config.Config) Options {
	return Options{
		User:         cfg.DBUser,
		Pass:         cfg.DBPass,
		Host:         cfg.DBHost,
		Port:         cfg.DBPort,
		Name:         cfg.DBName,
		MaxOpenConns: cfg.DBMaxOpenConns,
		Timeout:      cfg.DBTimeout,
	}
}

// DSN renders the go-sql-driver/mysql data source name.
func (o Options) DSN() string {
	auth := o.User
	if o.Pass != "" {
		auth = fmt.Sprintf("%s:%s", o.User, o.Pass)
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	// multiStatements lets Migrate apply the embedded schema in one Exec.
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC&multiStatements=true&timeout=%s&readTimeout=%s&writeTimeout=%s",
		auth, o.Host, o.Port, o.Name, timeout, timeout, timeout)
}

// Open connects to MySQL and verifies the connection.
func Open(o Options) (*sql.DB, error) {
	db, err := sql.Open("mysql", o.DSN())
	if err != nil {
		return nil, err
	}

	// Pool settings
	n := o.MaxOpenConns
	if n <= 0 {
		n = 25
	}
	db.SetMaxOpenConns(n)
	db.SetMaxIdleConns(n)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
