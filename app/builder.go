package app

import (
	"context"
	"fmt"

	"github.com/tech-arch1tect/chatline/config"
	"github.com/tech-arch1tect/chatline/database"
	"github.com/tech-arch1tect/chatline/navigation"
	"github.com/tech-arch1tect/chatline/services/auth"
	"github.com/tech-arch1tect/chatline/services/cache"
	"github.com/tech-arch1tect/chatline/services/gateway"
	"github.com/tech-arch1tect/chatline/services/logging"
	"github.com/tech-arch1tect/chatline/services/messages"
	"github.com/tech-arch1tect/chatline/services/realtime"
	"github.com/tech-arch1tect/chatline/services/token"
	"go.uber.org/fx"
)

type AppBuilder struct {
	config    *config.Config
	navigator navigation.Navigator
	services  map[string]bool
	models    []any
	fxOptions []fx.Option
	errors    []error
}

func NewApp() *AppBuilder {
	return &AppBuilder{
		services:  make(map[string]bool),
		models:    make([]any, 0),
		fxOptions: make([]fx.Option, 0),
		errors:    make([]error, 0),
	}
}

func (b *AppBuilder) WithConfig(cfg *config.Config) *AppBuilder {
	if cfg == nil {
		b.addError("config cannot be nil")
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithAutoConfig() *AppBuilder {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		b.addError(fmt.Sprintf("failed to load config: %v", err))
		return b
	}
	b.config = cfg
	return b
}

// WithDatabase persists the message cache, plus any extra models, through
// the configured gorm driver.
func (b *AppBuilder) WithDatabase(models ...any) *AppBuilder {
	b.services["database"] = true
	b.models = append(b.models, models...)
	return b
}

// WithNavigator installs the host's router. Without one navigation requests
// are dropped.
func (b *AppBuilder) WithNavigator(n navigation.Navigator) *AppBuilder {
	if n == nil {
		b.addError("navigator cannot be nil")
		return b
	}
	b.navigator = n
	return b
}

func (b *AppBuilder) WithFxOptions(opts ...fx.Option) *AppBuilder {
	b.fxOptions = append(b.fxOptions, opts...)
	return b
}

func (b *AppBuilder) Build() (*App, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	if b.config == nil {
		if err := b.WithAutoConfig().validate(); err != nil {
			return nil, err
		}
	}

	if err := b.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := b.createLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	app := &App{
		config: b.config,
		logger: logger,
	}

	fxOptions := b.buildFxOptions(logger)
	fxOptions = append(fxOptions, fx.Populate(
		&app.tokens,
		&app.gateway,
		&app.realtime,
		&app.cache,
		&app.messages,
		&app.auth,
	))
	if b.services["database"] {
		fxOptions = append(fxOptions, fx.Populate(&app.db))
	}

	fxApp := fx.New(fxOptions...)
	if err := fxApp.Err(); err != nil {
		return nil, fmt.Errorf("failed to wire application: %w", err)
	}
	app.fx = fxApp

	return app, nil
}

func (b *AppBuilder) addError(msg string) {
	b.errors = append(b.errors, fmt.Errorf("%s", msg))
}

func (b *AppBuilder) validate() error {
	if len(b.errors) > 0 {
		return fmt.Errorf("configuration errors: %v", b.errors)
	}

	if b.config != nil && b.config.Database.Enabled {
		b.services["database"] = true
	}

	return nil
}

func (b *AppBuilder) createLogger() (*logging.Service, error) {
	if b.config == nil {
		return nil, fmt.Errorf("config required for logger creation")
	}

	return logging.NewLoggingService(b.config)
}

func (b *AppBuilder) buildFxOptions(logger *logging.Service) []fx.Option {
	navigator := b.navigator
	if navigator == nil {
		navigator = navigation.Nop()
	}

	options := []fx.Option{
		config.NewProvider(b.config),
		fx.Supply(logger),
		fx.Provide(func() navigation.Navigator { return navigator }),
		fx.NopLogger,
	}

	if b.services["database"] {
		models := append([]any{&cache.CachedMessage{}}, b.models...)
		options = append(options,
			fx.Supply(database.WithModels(models...)),
			database.Module,
		)
	}

	options = append(options,
		fx.Provide(
			token.NewAuthority,
			gateway.NewGateway,
			realtime.NewManager,
			cache.ProvideCache,
			messages.NewLoader,
			auth.ProvideAuthService,
		),
		fx.Invoke(auth.RegisterForcedLogout),
		fx.Invoke(bridgeRealtimeToCache),
	)

	options = append(options, b.fxOptions...)

	options = append(options, b.buildLifecycleHooks()...)

	return options
}

// bridgeRealtimeToCache keeps loaded rooms current with pushed messages.
func bridgeRealtimeToCache(m *realtime.Manager, c *cache.Cache) {
	m.Subscribe(c.Observe)
}

func (b *AppBuilder) buildLifecycleHooks() []fx.Option {
	return []fx.Option{
		fx.Invoke(func(lc fx.Lifecycle, m *realtime.Manager, logger *logging.Service) {
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					logger.Debug("closing realtime session")
					m.Disconnect()
					return nil
				},
			})
		}),
		fx.Invoke(logging.RegisterSync),
	}
}
