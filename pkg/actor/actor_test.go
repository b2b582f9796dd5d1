package actor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name  string
		actor *Actor
		want  string
	}{
		{"nil", nil, "System"},
		{"name", &Actor{ID: "u1", Name: "Dr. Smith", Email: "s@clinic.test"}, "Dr. Smith"},
		{"email fallback", &Actor{ID: "u1", Email: "s@clinic.test"}, "s@clinic.test"},
		{"id fallback", &Actor{ID: "u1"}, "u1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.actor.DisplayName())
		})
	}
}

func TestContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	a := &Actor{ID: "u1", Name: "Dr. Smith"}
	ctx := WithActor(context.Background(), a)
	assert.Same(t, a, FromContext(ctx))
}

func TestSystemActor(t *testing.T) {
	assert.True(t, SystemActor().IsSystem())
	assert.True(t, (*Actor)(nil).IsSystem())
	assert.False(t, (&Actor{ID: "u1"}).IsSystem())
}
