package storage

import (
	"context"

	"gorm.io/gorm"

	platformerrors "feelink-client-go/internal/platform/errors"
)

// DeviceRepository reads and writes the single registration row.
type DeviceRepository struct {
	db *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Load returns the stored registration, or nil when none exists yet.
func (r *DeviceRepository) Load(ctx context.Context) (*DeviceRegistration, error) {
	var model DeviceRegistration
	if err := r.db.WithContext(ctx).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "device.load", "failed to load registration", err)
	}
	return &model, nil
}

// Save inserts or updates the registration row.
func (r *DeviceRepository) Save(ctx context.Context, reg *DeviceRegistration) error {
	if err := r.db.WithContext(ctx).Save(reg).Error; err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "device.save", "failed to save registration", err)
	}
	return nil
}
