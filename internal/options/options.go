package options

import (
	"github.com/tech-arch1tect/chatline/config"
	"github.com/tech-arch1tect/chatline/navigation"
	"go.uber.org/fx"
)

type Options struct {
	Config         *config.Config
	Navigator      navigation.Navigator
	EnableDatabase bool
	DatabaseModels []any
	ExtraFxOptions []fx.Option
}

type Option func(*Options)

func Apply(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

func WithConfig(cfg *config.Config) Option {
	return func(opts *Options) {
		opts.Config = cfg
	}
}

func WithNavigator(n navigation.Navigator) Option {
	return func(opts *Options) {
		opts.Navigator = n
	}
}

func WithDatabase(models ...any) Option {
	return func(opts *Options) {
		opts.EnableDatabase = true
		opts.DatabaseModels = append(opts.DatabaseModels, models...)
	}
}

func WithFxOptions(fxOpts ...fx.Option) Option {
	return func(opts *Options) {
		opts.ExtraFxOptions = append(opts.ExtraFxOptions, fxOpts...)
	}
}
