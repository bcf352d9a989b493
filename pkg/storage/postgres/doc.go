// Package postgres provides the database connection pool and schema
// migrations for the seat-sync service. Stores in other packages share
// the *sql.DB handle created here.
package postgres
