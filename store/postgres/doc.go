// Package postgres implements the store using pgx/v5 with raw SQL.
// Version-guarded writes are single UPDATE or DELETE statements checked
// by RowsAffected; exclusive scope leases live in their own table and are
// taken with a conditional upsert. Migrations are embedded SQL files.
package postgres
