package repository

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

func NewDB(connStr string) (*sql.DB, error) {
	dbConn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}

	return dbConn, nil
}
