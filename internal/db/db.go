package db

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"
)

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

func MustOpen(dsn string) *sql.DB {
	if dsn == "" {
		log.Fatal("CART_DB_DSN not set")
	}
	db, err := openDB(dsn)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	return db
}
