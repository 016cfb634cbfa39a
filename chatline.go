package chatline

import (
	"github.com/tech-arch1tect/chatline/app"
	"github.com/tech-arch1tect/chatline/config"
	"github.com/tech-arch1tect/chatline/internal/options"
	"github.com/tech-arch1tect/chatline/navigation"
	"go.uber.org/fx"
)

type App = app.App

// New builds a client app. Without WithConfig the configuration is read
// from the environment.
func New(opts ...options.Option) (*App, error) {
	o := options.Apply(opts...)

	builder := app.NewApp()
	if o.Config != nil {
		builder.WithConfig(o.Config)
	}
	if o.Navigator != nil {
		builder.WithNavigator(o.Navigator)
	}
	if o.EnableDatabase {
		builder.WithDatabase(o.DatabaseModels...)
	}
	builder.WithFxOptions(o.ExtraFxOptions...)

	return builder.Build()
}

func WithConfig(cfg *config.Config) options.Option {
	return options.WithConfig(cfg)
}

func WithNavigator(n navigation.Navigator) options.Option {
	return options.WithNavigator(n)
}

func WithDatabase(models ...any) options.Option {
	return options.WithDatabase(models...)
}

func WithFxOptions(opts ...fx.Option) options.Option {
	return options.WithFxOptions(opts...)
}

type Option = options.Option
