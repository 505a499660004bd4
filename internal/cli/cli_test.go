package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relata/relata"
)

type label struct {
	Name string
}

type note struct {
	ID     relata.ID
	Title  string
	Labels []label
}

// newNotesDB creates a database with a seeded note table and returns its path.
func newNotesDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notes.db")
	db, err := relata.Open(path)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.Table(note{}).Create(ctx, relata.CreateOptions{Unique: "title"}))
	require.NoError(t, db.Table(note{}).Put(ctx, &note{
		Title:  "hello",
		Labels: []label{{Name: "inbox"}},
	}))
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootRejectsUnknownFormat(t *testing.T) {
	path := newNotesDB(t)
	_, err := runCommand(t, "tables", path, "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestTablesCommand(t *testing.T) {
	path := newNotesDB(t)
	out, err := runCommand(t, "tables", path)
	require.NoError(t, err)
	assert.Contains(t, out, "note")
	assert.Contains(t, out, "label")
	assert.Contains(t, out, relata.RelationTable+" (relation store)")
}

func TestSchemaCommand(t *testing.T) {
	path := newNotesDB(t)
	out, err := runCommand(t, "schema", path, "note")
	require.NoError(t, err)
	assert.Contains(t, out, "CREATE TABLE")
	assert.Contains(t, out, "title")

	_, err = runCommand(t, "schema", path, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such table")
}

func TestRowsCommandJSON(t *testing.T) {
	path := newNotesDB(t)
	out, err := runCommand(t, "rows", path, "note", "--format", "json")
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "hello", rows[0]["title"])
}

func TestSeedCommand(t *testing.T) {
	path := newNotesDB(t)
	seedPath := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(`
tables:
  - table: note
    rows:
      - title: seeded
      - title: "@uuid"
`), 0o644))

	out, err := runCommand(t, "seed", path, seedPath)
	require.NoError(t, err)
	assert.Contains(t, out, "seed run")

	db, err := relata.Open(path)
	require.NoError(t, err)
	defer db.Close()

	count, err := db.Table("note").Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	generated, err := db.Table("note").WhereFields(map[string]any{"title": "@uuid"}).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), generated, "placeholder expanded, not stored verbatim")
}

func TestSeedUnknownTableFails(t *testing.T) {
	path := newNotesDB(t)
	seedPath := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(`
tables:
  - table: nowhere
    rows:
      - title: x
`), 0o644))

	_, err := runCommand(t, "seed", path, seedPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such table")
}
