package cache

import (
	"github.com/tech-arch1tect/chatline/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type OptionalDB struct {
	fx.In
	DB *gorm.DB `optional:"true"`
}

// ProvideCache persists to the database when one is wired, otherwise the
// cache lives in memory only.
func ProvideCache(logger *logging.Service, optDB OptionalDB) (*Cache, error) {
	logger = logger.Named("cache")

	if optDB.DB == nil {
		logger.Debug("room cache running without persistence")
		return New(logger), nil
	}

	if err := optDB.DB.AutoMigrate(&CachedMessage{}); err != nil {
		logger.Error("failed to migrate cached messages table - falling back to memory-only cache", zap.Error(err))
		return New(logger), nil
	}

	c := NewWithDB(optDB.DB, logger)
	if err := c.LoadFromDatabase(); err != nil {
		return nil, err
	}
	return c, nil
}
