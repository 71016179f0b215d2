package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podscribe/podscribe/internal/models"
)

func TestInitializeAndMigrate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := Initialize(dbPath, false)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate())
	require.NoError(t, db.HealthCheck())

	// The schema is usable after migration.
	podcast := &models.Podcast{FeedURL: "https://example.com/feed.xml", Title: "Show"}
	require.NoError(t, db.Create(podcast).Error)
	assert.NotEmpty(t, podcast.ID)
}

func TestHealthCheckNil(t *testing.T) {
	var db *DB
	assert.Error(t, db.HealthCheck())
}
