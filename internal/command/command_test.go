package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookupIsCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	r.Register(&Command{Name: "Ping"})

	cmd, ok := r.Lookup("PING")
	require.True(t, ok)
	assert.Equal(t, "Ping", cmd.Name)

	_, ok = r.Lookup("pong")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	r.Register(&Command{Name: "ping"})

	assert.Panics(t, func() {
		r.Register(&Command{Name: "PING"})
	})
}

func TestRegistryCommandsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(
		&Command{Name: "menu"},
		&Command{Name: "ban"},
		&Command{Name: "ping"},
	)

	var names []string
	for _, cmd := range r.Commands() {
		names = append(names, cmd.Name)
	}
	assert.Equal(t, []string{"ban", "menu", "ping"}, names)
	assert.Equal(t, 3, r.Len())
}

func TestEnvelopeArg(t *testing.T) {
	env := &Envelope{Args: []string{"on", "extra"}}

	assert.Equal(t, "on", env.Arg(0))
	assert.Equal(t, "extra", env.Arg(1))
	assert.Equal(t, "", env.Arg(2))
	assert.Equal(t, "", env.Arg(-1))
}

func TestEnvelopeTailAfter(t *testing.T) {
	env := &Envelope{Tail: "set  olá  mundo"}

	assert.Equal(t, "set  olá  mundo", env.TailAfter(0))
	assert.Equal(t, "olá  mundo", env.TailAfter(1))
	assert.Equal(t, "mundo", env.TailAfter(2))
	assert.Equal(t, "", env.TailAfter(3))
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		in       string
		wantName string
		wantTail string
	}{
		{"ping", "ping", ""},
		{"ban  @user  agora", "ban", "@user  agora"},
		{"  espaçado  ", "espaçado", ""},
		{"", "", ""},
		{"nome Novo Nome do Grupo", "nome", "Novo Nome do Grupo"},
	}
	for _, tt := range tests {
		name, tail := splitCommand(tt.in)
		assert.Equal(t, tt.wantName, name, tt.in)
		assert.Equal(t, tt.wantTail, tail, tt.in)
	}
}
