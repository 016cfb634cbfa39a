package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/chatline/navigation"
	"github.com/tech-arch1tect/chatline/services/cache"
	"github.com/tech-arch1tect/chatline/services/realtime"
	"github.com/tech-arch1tect/chatline/testutils"
	"go.uber.org/fx"
)

func TestNewApp(t *testing.T) {
	builder := NewApp()

	assert.NotNil(t, builder)
	assert.Empty(t, builder.services)
	assert.Empty(t, builder.models)
	assert.Empty(t, builder.fxOptions)
	assert.Empty(t, builder.errors)
	assert.Nil(t, builder.navigator)
}

func TestAppBuilder_WithConfig(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := testutils.GetTestConfig()
		builder := NewApp()

		result := builder.WithConfig(cfg)

		assert.Equal(t, builder, result)
		assert.Equal(t, cfg, builder.config)
	})

	t.Run("nil config", func(t *testing.T) {
		builder := NewApp()

		builder.WithConfig(nil)

		assert.Nil(t, builder.config)
		require.Len(t, builder.errors, 1)
		assert.Contains(t, builder.errors[0].Error(), "config cannot be nil")

		_, err := builder.Build()
		assert.ErrorContains(t, err, "configuration errors")
	})
}

func TestAppBuilder_WithAutoConfig(t *testing.T) {
	t.Setenv("CHATLINE_API_DOMAIN", "chat.example.com")

	builder := NewApp().WithAutoConfig()

	require.Empty(t, builder.errors)
	require.NotNil(t, builder.config)
	assert.Equal(t, "chat.example.com", builder.config.API.Domain)
}

func TestAppBuilder_WithNavigator(t *testing.T) {
	history := navigation.NewHistory()

	builder := NewApp().WithNavigator(history)
	assert.Equal(t, history, builder.navigator)

	builder = NewApp().WithNavigator(nil)
	assert.Len(t, builder.errors, 1)
}

func TestAppBuilder_WithDatabase(t *testing.T) {
	type TestModel struct {
		ID   uint   `gorm:"primaryKey"`
		Name string `gorm:"size:255"`
	}

	cfg := testutils.GetTestConfig()
	app, err := NewApp().WithConfig(cfg).WithDatabase(&TestModel{}).Build()
	require.NoError(t, err)

	require.NotNil(t, app.DB())
	assert.True(t, app.DB().Migrator().HasTable(&cache.CachedMessage{}))
	assert.True(t, app.DB().Migrator().HasTable(&TestModel{}))
}

func TestAppBuilder_DatabaseEnabledByConfig(t *testing.T) {
	cfg := testutils.GetTestConfig()
	cfg.Database.Enabled = true

	app, err := NewApp().WithConfig(cfg).Build()
	require.NoError(t, err)

	assert.NotNil(t, app.DB())
}

func TestAppBuilder_Build(t *testing.T) {
	t.Run("wires every service", func(t *testing.T) {
		app, err := NewApp().WithConfig(testutils.GetTestConfig()).Build()
		require.NoError(t, err)

		assert.NotNil(t, app.Tokens())
		assert.NotNil(t, app.Gateway())
		assert.NotNil(t, app.Realtime())
		assert.NotNil(t, app.Cache())
		assert.NotNil(t, app.Messages())
		assert.NotNil(t, app.Auth())
		assert.NotNil(t, app.Logger())
		assert.Nil(t, app.DB())
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := testutils.GetTestConfig()
		cfg.Realtime.BackoffFactor = 0.5

		_, err := NewApp().WithConfig(cfg).Build()

		assert.ErrorContains(t, err, "backoff factor")
	})

	t.Run("unsupported database driver", func(t *testing.T) {
		cfg := testutils.GetTestConfig()
		cfg.Database.Driver = "oracle"

		_, err := NewApp().WithConfig(cfg).WithDatabase().Build()

		assert.ErrorContains(t, err, "failed to initialize database")
	})
}

func TestAppBuilder_WithFxOptions(t *testing.T) {
	var got *realtime.Manager

	app, err := NewApp().
		WithConfig(testutils.GetTestConfig()).
		WithFxOptions(fx.Invoke(func(m *realtime.Manager) { got = m })).
		Build()
	require.NoError(t, err)

	assert.Same(t, app.Realtime(), got)
}
