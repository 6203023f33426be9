package database

import (
	"testing"

	"github.com/nexushub/controlplane/internal/common/config"
	"github.com/stretchr/testify/assert"
)

func TestNewDatabase_UnsupportedType(t *testing.T) {
	_, err := NewDatabase(&config.DatabaseConfig{Type: "oracle"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")
}

func TestNewDatabase_SQLite(t *testing.T) {
	db, err := NewDatabase(&config.DatabaseConfig{Type: "sqlite", DBName: ":memory:"})
	assert.NoError(t, err)
	assert.NotNil(t, db)
	assert.NoError(t, db.Close())
}

func TestNewDatabase_SQLiteFile(t *testing.T) {
	path := t.TempDir() + "/nested/cp.db"
	db, err := NewDatabase(&config.DatabaseConfig{Type: "sqlite", DBName: path})
	assert.NoError(t, err)
	assert.NoError(t, db.Close())
}
