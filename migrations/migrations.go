// Package migrations embeds the SQL schema of each service.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

//go:embed inventory/*.sql
var files embed.FS

// Inventory returns the inventory up migrations in version order.
func Inventory() ([]string, error) {
	return load("inventory", ".up.sql")
}

// InventoryDown returns the inventory down migrations in reverse version order.
func InventoryDown() ([]string, error) {
	scripts, err := load("inventory", ".down.sql")
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(scripts)-1; i < j; i, j = i+1, j-1 {
		scripts[i], scripts[j] = scripts[j], scripts[i]
	}
	return scripts, nil
}

func load(dir, suffix string) ([]string, error) {
	entries, err := fs.ReadDir(files, dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	scripts := make([]string, 0, len(names))
	for _, name := range names {
		body, err := fs.ReadFile(files, dir+"/"+name)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, string(body))
	}
	return scripts, nil
}

// Apply executes scripts in order. Each script is sent as one simple-protocol
// query so it may hold several statements.
func Apply(ctx context.Context, db *sqlx.DB, scripts []string) error {
	for i, script := range scripts {
		if _, err := db.ExecContext(ctx, script); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
