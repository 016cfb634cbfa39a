package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tech-arch1tect/chatline/config"
	"github.com/tech-arch1tect/chatline/protocol"
	"github.com/tech-arch1tect/chatline/services/auth"
	"github.com/tech-arch1tect/chatline/services/cache"
	"github.com/tech-arch1tect/chatline/services/gateway"
	"github.com/tech-arch1tect/chatline/services/logging"
	"github.com/tech-arch1tect/chatline/services/messages"
	"github.com/tech-arch1tect/chatline/services/realtime"
	"github.com/tech-arch1tect/chatline/services/token"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	fx       *fx.App
	config   *config.Config
	logger   *logging.Service
	db       *gorm.DB
	tokens   *token.Authority
	gateway  *gateway.Client
	realtime *realtime.Manager
	cache    *cache.Cache
	messages *messages.Loader
	auth     *auth.Service
}

func (a *App) Start() error {
	return a.fx.Start(context.Background())
}

func (a *App) StartTest() error {
	return a.fx.Start(context.Background())
}

// Run starts the app and calls session with a context that is cancelled on
// SIGINT or SIGTERM. The app is stopped once session returns.
func (a *App) Run(session func(ctx context.Context) error) error {
	if err := a.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}
	defer a.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := session(ctx)
	if ctx.Err() != nil {
		a.logger.Info("Received shutdown signal, stopping gracefully...")
	}
	return err
}

func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.fx.Stop(ctx); err != nil {
		a.logger.Error("Failed to stop application gracefully", zap.Error(err))
	}
}

func (a *App) StopTest() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := a.fx.Stop(ctx); err != nil {
		a.logger.Error("Failed to stop test application", zap.Error(err))
	}
}

// SignIn logs in, loads the current user and opens the realtime session.
// A failed socket handshake is not an error: the session manager keeps
// retrying in the background.
func (a *App) SignIn(ctx context.Context, email, password string) (*protocol.User, error) {
	if err := a.auth.Login(ctx, email, password); err != nil {
		return nil, err
	}

	user, err := a.auth.FetchUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !a.realtime.Connect(ctx) {
		a.logger.Warn("realtime session not open yet, retrying in background")
	}
	return user, nil
}

// SignOut tears down the session on both ends.
func (a *App) SignOut(ctx context.Context) {
	a.auth.Logout(ctx)
}

func (a *App) Config() *config.Config {
	return a.config
}

func (a *App) Logger() *logging.Service {
	return a.logger
}

func (a *App) DB() *gorm.DB {
	return a.db
}

func (a *App) Tokens() *token.Authority {
	return a.tokens
}

func (a *App) Gateway() *gateway.Client {
	return a.gateway
}

func (a *App) Realtime() *realtime.Manager {
	return a.realtime
}

func (a *App) Cache() *cache.Cache {
	return a.cache
}

func (a *App) Messages() *messages.Loader {
	return a.messages
}

func (a *App) Auth() *auth.Service {
	return a.auth
}
