package cli

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/orm4go/internal/testutil"
	"github.com/ammar0144/orm4go/pkg/db"
)

func seedDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clinic.db")
	m, err := db.NewManager(&db.Config{Driver: db.DialectSQLite, Database: path, MaxOpenConns: 1})
	require.NoError(t, err)
	defer m.Close()

	testutil.Exec(t, m.Conn(),
		`CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, first_name TEXT, email TEXT)`,
		`CREATE TABLE addresses (id INTEGER PRIMARY KEY AUTOINCREMENT, street TEXT, user_id INTEGER)`,
		`INSERT INTO users (first_name, email) VALUES ('John', 'john@example.com')`,
		`INSERT INTO addresses (street, user_id) VALUES ('1 Main St', 1)`,
	)
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func dbArgs(path string, args ...string) []string {
	return append([]string{"--driver", "sqlite", "--database", path, "--discover", "--log-level", "error"}, args...)
}

func TestTablesCommand(t *testing.T) {
	path := seedDatabase(t)

	out, err := run(t, dbArgs(path, "tables")...)
	require.NoError(t, err)
	assert.Contains(t, out, "addresses")
	assert.Contains(t, out, "users")
	assert.Contains(t, out, "User")
}

func TestInspectCommand(t *testing.T) {
	path := seedDatabase(t)

	out, err := run(t, dbArgs(path, "inspect", "users")...)
	require.NoError(t, err)
	assert.Contains(t, out, "primary key (auto)")
	assert.Contains(t, out, "one_to_many")
	assert.Contains(t, out, "dependents: addresses")

	_, err = run(t, dbArgs(path, "inspect", "nothing")...)
	assert.Error(t, err)
}

func TestResolveCommand(t *testing.T) {
	path := seedDatabase(t)

	out, err := run(t, dbArgs(path, "resolve", "addresses", "users")...)
	require.NoError(t, err)
	assert.Contains(t, out, "belongs_to")
	assert.Contains(t, out, "user_id")

	_, err = run(t, dbArgs(path, "resolve", "users", "users", "--role", "manager")...)
	assert.Error(t, err)
}

func TestFindCommand(t *testing.T) {
	path := seedDatabase(t)

	out, err := run(t, dbArgs(path, "find", "users", "1", "--format", "insert")...)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO users (email, first_name, id) VALUES ('john@example.com', 'John', 1)\n", out)

	out, err = run(t, dbArgs(path, "find", "users", "1", "--include", "addresses")...)
	require.NoError(t, err)
	assert.Contains(t, out, `"children"`)
	assert.Contains(t, out, `"1 Main St"`)

	out, err = run(t, dbArgs(path, "find", "addresses", "1", "--format", "xml")...)
	require.NoError(t, err)
	assert.Contains(t, out, "<address>")

	_, err = run(t, dbArgs(path, "find", "users", "99")...)
	assert.Error(t, err)

	_, err = run(t, dbArgs(path, "find", "users", "1", "--format", "yaml")...)
	assert.Error(t, err)
}

func TestInflectCommandNeedsNoDatabase(t *testing.T) {
	out, err := run(t, "inflect", "person", "addresses")
	require.NoError(t, err)
	assert.Contains(t, out, "people")
	assert.Contains(t, out, "Person")
	assert.Contains(t, out, "person_id")
	assert.Contains(t, out, "address_id")
}

func TestMissingDatabase(t *testing.T) {
	_, err := run(t, "--driver", "sqlite", "tables")
	assert.Error(t, err)
}
