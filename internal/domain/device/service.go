// Package device keeps the client's push registration in sync with the
// backend. The installation id is minted locally on first run and
// reused forever after.
package device

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"feelink-client-go/internal/gateway"
	"feelink-client-go/internal/platform/logging"
	"feelink-client-go/internal/platform/storage"
)

// Registrar is the backend operation the service needs.
type Registrar interface {
	RegisterDevice(ctx context.Context, reg gateway.Registration) error
}

// Config wires a Service.
type Config struct {
	Repository *storage.DeviceRepository
	Registrar  Registrar
	Logger     *logging.Logger

	Platform string
	Token    string
	Tags     []string
}

// Service owns the registration lifecycle. Registration failures are
// logged and absorbed; the client keeps working without push.
type Service struct {
	repo      *storage.DeviceRepository
	registrar Registrar
	logger    *logging.Logger

	platform string
	token    string
	tags     []string
}

func NewService(cfg Config) *Service {
	return &Service{
		repo:      cfg.Repository,
		registrar: cfg.Registrar,
		logger:    cfg.Logger,
		platform:  cfg.Platform,
		token:     cfg.Token,
		tags:      cfg.Tags,
	}
}

// EnsureRegistered loads or mints the installation record, pushes it to
// the backend when the stored state is missing or stale, and persists
// the result. Returns the installation id; a backend failure is
// non-fatal and leaves SyncedAt unset so the next start retries.
func (s *Service) EnsureRegistered(ctx context.Context) (string, error) {
	reg, err := s.repo.Load(ctx)
	if err != nil {
		return "", err
	}

	tags := strings.Join(s.tags, ",")
	if reg == nil {
		reg = &storage.DeviceRegistration{
			InstallationID: uuid.NewString(),
			RegisteredAt:   time.Now().UTC(),
		}
		s.logger.InfoTag("Device", "minted installation id %s", reg.InstallationID)
	}

	upToDate := reg.SyncedAt != nil &&
		reg.DeviceToken == s.token &&
		reg.Platform == s.platform &&
		reg.Tags == tags
	if upToDate {
		return reg.InstallationID, nil
	}

	reg.Platform = s.platform
	reg.DeviceToken = s.token
	reg.Tags = tags

	err = s.registrar.RegisterDevice(ctx, gateway.Registration{
		InstallationID: reg.InstallationID,
		Platform:       s.platform,
		DeviceToken:    s.token,
		Tags:           s.tags,
	})
	if err != nil {
		s.logger.WarnTag("Device", "backend registration failed, will retry next start: %v", err)
		reg.SyncedAt = nil
	} else {
		now := time.Now().UTC()
		reg.SyncedAt = &now
	}

	if err := s.repo.Save(ctx, reg); err != nil {
		return "", err
	}
	return reg.InstallationID, nil
}
