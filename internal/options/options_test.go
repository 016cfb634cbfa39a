package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tech-arch1tect/chatline/config"
	"github.com/tech-arch1tect/chatline/navigation"
	"go.uber.org/fx"
)

func TestApply(t *testing.T) {
	cfg := &config.Config{}
	history := navigation.NewHistory()

	o := Apply(
		WithConfig(cfg),
		WithNavigator(history),
		WithDatabase("a"),
		WithDatabase("b"),
		WithFxOptions(fx.NopLogger),
		nil,
	)

	assert.Same(t, cfg, o.Config)
	assert.Equal(t, history, o.Navigator)
	assert.True(t, o.EnableDatabase)
	assert.Equal(t, []any{"a", "b"}, o.DatabaseModels)
	assert.Len(t, o.ExtraFxOptions, 1)
}

func TestApply_Empty(t *testing.T) {
	o := Apply()

	assert.Nil(t, o.Config)
	assert.Nil(t, o.Navigator)
	assert.False(t, o.EnableDatabase)
}
