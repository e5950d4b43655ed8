// Package appfs embeds the static files the binaries need at runtime: SQL migrations and email templates.
package appfs

import "embed"

//go:embed migrations all:assets
var FS embed.FS

// MigrationsDir returns the migrations directory for a database engine.
func MigrationsDir(engine string) string {
	return "migrations/" + engine
}

const EmailTemplatesDir = "assets/templates/email"
