package device

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feelink-client-go/internal/gateway"
	"feelink-client-go/internal/platform/storage"
	platformtesting "feelink-client-go/internal/platform/testing"
)

type registrarRecorder struct {
	calls []gateway.Registration
	err   error
}

func (r *registrarRecorder) RegisterDevice(ctx context.Context, reg gateway.Registration) error {
	r.calls = append(r.calls, reg)
	return r.err
}

func newTestService(t *testing.T, registrar *registrarRecorder) *Service {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)

	return NewService(Config{
		Repository: storage.NewDeviceRepository(db),
		Registrar:  registrar,
		Logger:     platformtesting.SetupTestLogger(t),
		Platform:   "apns",
		Token:      "tok-a",
		Tags:       []string{"ios", "feelink_user"},
	})
}

func TestEnsureRegisteredMintsStableInstallationID(t *testing.T) {
	registrar := &registrarRecorder{}
	service := newTestService(t, registrar)
	ctx := context.Background()

	first, err := service.EnsureRegistered(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := service.EnsureRegistered(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Second call found the synced record and skipped the backend.
	require.Len(t, registrar.calls, 1)
	assert.Equal(t, first, registrar.calls[0].InstallationID)
	assert.Equal(t, []string{"ios", "feelink_user"}, registrar.calls[0].Tags)
}

func TestEnsureRegisteredRetriesAfterBackendFailure(t *testing.T) {
	registrar := &registrarRecorder{err: errors.New("backend down")}
	service := newTestService(t, registrar)
	ctx := context.Background()

	id, err := service.EnsureRegistered(ctx)
	require.NoError(t, err, "backend failure must be non-fatal")
	require.NotEmpty(t, id)

	registrar.err = nil
	again, err := service.EnsureRegistered(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Len(t, registrar.calls, 2)
}
