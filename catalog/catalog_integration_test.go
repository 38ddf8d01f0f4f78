//go:build integration

package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rerun-go/rerun/logmsg"
	"github.com/rerun-go/rerun/rid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgresContainer(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start postgres container")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=testuser password=testpass dbname=testdb sslmode=disable", host, port.Port())

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}
	return dsn, cleanup
}

func TestCatalog_Integration_RegisterAndList(t *testing.T) {
	dsn, cleanup := setupPostgresContainer(t)
	defer cleanup()

	cat, err := Open(DefaultConfig(dsn))
	require.NoError(t, err)
	defer cat.Close()

	a := logmsg.StoreInfo{StoreId: rid.StoreId{ApplicationId: "app_a", RecordingId: "rec-a", Kind: rid.StoreKindRecording}, RecordingName: "first"}
	b := logmsg.StoreInfo{StoreId: rid.StoreId{ApplicationId: "app_b", RecordingId: "rec-b", Kind: rid.StoreKindRecording}, RecordingName: "second"}

	require.NoError(t, cat.Register(a))
	time.Sleep(10 * time.Millisecond) // force a distinct StartTimeNs ordering
	require.NoError(t, cat.Register(b))

	recs, err := cat.ListRecordings()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "rec-b", recs[0].StoreId.RecordingId, "most recently registered recording sorts first")
	assert.Equal(t, "rec-a", recs[1].StoreId.RecordingId)
}

func TestCatalog_Integration_RegisterIsIdempotent(t *testing.T) {
	dsn, cleanup := setupPostgresContainer(t)
	defer cleanup()

	cat, err := Open(DefaultConfig(dsn))
	require.NoError(t, err)
	defer cat.Close()

	info := logmsg.StoreInfo{StoreId: rid.StoreId{ApplicationId: "app", RecordingId: "rec-1", Kind: rid.StoreKindRecording}, RecordingName: "v1"}
	require.NoError(t, cat.Register(info))

	info.RecordingName = "v2"
	require.NoError(t, cat.Register(info))

	recs, err := cat.ListRecordings()
	require.NoError(t, err)
	require.Len(t, recs, 1, "re-registering the same StoreId updates the row instead of inserting a second one")
	assert.Equal(t, "v2", recs[0].RecordingName)
}

func TestCatalog_Integration_OpenRecording(t *testing.T) {
	dsn, cleanup := setupPostgresContainer(t)
	defer cleanup()

	cat, err := Open(DefaultConfig(dsn))
	require.NoError(t, err)
	defer cat.Close()

	info := logmsg.StoreInfo{StoreId: rid.StoreId{ApplicationId: "app", RecordingId: "rec-1", Kind: rid.StoreKindRecording}}
	require.NoError(t, cat.Register(info))

	found, ok, err := cat.OpenRecording("rec-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "rec-1", found.StoreId.RecordingId)

	_, ok, err = cat.OpenRecording("does-not-exist")
	require.NoError(t, err)
	assert.False(t, ok)
}
