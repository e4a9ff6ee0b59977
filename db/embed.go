// Package db embeds the database schema.
package db

import _ "embed"

// Schema creates the customers, orders and api_keys tables. It is idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
