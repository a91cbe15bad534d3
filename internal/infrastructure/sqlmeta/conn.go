package sqlmeta

import (
	"crypto/tls"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
)

var tlsOnce sync.Once // TLS config may only be registered once per process

// Connect opens the metadata store from METADATA_DB_* environment
// variables. sql.DB is already thread-safe and pools its own connections,
// so callers share the returned handle freely.
func Connect() (*sql.DB, error) {
	host := os.Getenv("METADATA_DB_HOST")
	port := os.Getenv("METADATA_DB_PORT")
	user := os.Getenv("METADATA_DB_USER")
	password := os.Getenv("METADATA_DB_PASSWORD")
	database := os.Getenv("METADATA_DB_NAME")

	if port == "" {
		port = "4000"
	}
	if database == "" {
		database = "erdflow"
	}

	// Remote hosts (e.g. TiDB Cloud) require TLS with ServerName set;
	// localhost connects plain.
	tlsParam := ""
	if host != "" && host != "127.0.0.1" && host != "localhost" {
		tlsOnce.Do(func() {
			if err := mysql.RegisterTLSConfig("metadata", &tls.Config{
				MinVersion: tls.VersionTLS12,
				ServerName: host,
			}); err != nil {
				log.Printf("Failed to register TLS config: %v\n", err)
			}
		})
		tlsParam = "&tls=metadata"
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local%s",
		user, password, host, port, database, tlsParam)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// MaxIdleConns matches MaxOpenConns so connections stay alive instead
	// of churning through ephemeral ports under load.
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(50)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(3 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
