// Package db embeds the SQL schema applied at startup.
package db

import _ "embed"

// Schema holds the DDL for every commerce-core table. Statements are
// idempotent (CREATE TABLE IF NOT EXISTS) so re-running is safe.
//
//go:embed migrations/001_schema.sql
var Schema string
