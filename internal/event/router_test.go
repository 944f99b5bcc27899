package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
)

type fakeConn struct {
	connected    int
	disconnected []string
	loggedOut    []string
	panicOnOpen  bool
}

func (f *fakeConn) HandleConnected() {
	if f.panicOnOpen {
		panic("hook exploded")
	}
	f.connected++
}

func (f *fakeConn) HandleDisconnected(reason string) {
	f.disconnected = append(f.disconnected, reason)
}

func (f *fakeConn) HandleLoggedOut(reason string) {
	f.loggedOut = append(f.loggedOut, reason)
}

func newConnRouter(conn ConnectionSink) *Router {
	return NewRouter(Deps{Connection: conn, Log: waLog.Noop})
}

func TestRouteDropsStaleGeneration(t *testing.T) {
	conn := &fakeConn{}
	r := newConnRouter(conn)

	gen := r.NextGeneration()
	r.Route(gen, &events.Connected{})
	assert.Equal(t, 1, conn.connected)

	// A reconnect bumps the generation; the old handler's events are fenced.
	r.NextGeneration()
	r.Route(gen, &events.Connected{})
	assert.Equal(t, 1, conn.connected)
}

func TestRouteConnectionLifecycle(t *testing.T) {
	conn := &fakeConn{}
	r := newConnRouter(conn)
	gen := r.NextGeneration()

	r.Route(gen, &events.Disconnected{})
	r.Route(gen, &events.StreamReplaced{})
	r.Route(gen, &events.LoggedOut{})

	assert.Equal(t, []string{"connection closed", "stream replaced"}, conn.disconnected)
	assert.Len(t, conn.loggedOut, 1)
}

func TestRouteContainsHandlerPanic(t *testing.T) {
	conn := &fakeConn{panicOnOpen: true}
	r := newConnRouter(conn)
	gen := r.NextGeneration()

	assert.NotPanics(t, func() {
		r.Route(gen, &events.Connected{})
	})

	// The router keeps working after a contained panic.
	r.Route(gen, &events.Disconnected{})
	assert.Equal(t, []string{"connection closed"}, conn.disconnected)
}

func TestRouteIgnoresUnknownEvents(t *testing.T) {
	r := newConnRouter(&fakeConn{})
	gen := r.NextGeneration()

	assert.NotPanics(t, func() {
		r.Route(gen, struct{ X int }{1})
	})
}

func TestSelfRoundTrip(t *testing.T) {
	r := newConnRouter(&fakeConn{})

	assert.True(t, r.Self().IsEmpty())

	full := types.JID{User: "555", Device: 12, Server: types.DefaultUserServer}
	r.SetSelf(full)

	self := r.Self()
	assert.Equal(t, "555", self.User)
	assert.Zero(t, self.Device, "self is stored in bare form")
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, "Message", kindOf(&events.Message{}))
	assert.Equal(t, "LoggedOut", kindOf(&events.LoggedOut{}))
	assert.Equal(t, "int", kindOf(3))
}
