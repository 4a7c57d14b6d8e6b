package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/relaywire/relayd/internal/core"
	"github.com/relaywire/relayd/internal/proto"
)

func dial(t *testing.T, ctx context.Context, env *testEnv) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, env.wsURL(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func dialAndAuth(t *testing.T, ctx context.Context, env *testEnv, token string) *websocket.Conn {
	t.Helper()

	conn := dial(t, ctx, env)
	if err := conn.Write(ctx, websocket.MessageText, []byte(token)); err != nil {
		t.Fatalf("send token: %v", err)
	}

	var reply proto.StatusReply
	if err := wsjson.Read(ctx, conn, &reply); err != nil {
		t.Fatalf("read handshake reply: %v", err)
	}
	if reply.Error || reply.Value != "welcome" {
		t.Fatalf("unexpected handshake reply: %+v", reply)
	}
	return conn
}

func setChannel(t *testing.T, ctx context.Context, conn *websocket.Conn, command string) {
	t.Helper()

	if err := conn.Write(ctx, websocket.MessageText, []byte(command)); err != nil {
		t.Fatalf("send command %q: %v", command, err)
	}
	var reply proto.CommandReply
	if err := wsjson.Read(ctx, conn, &reply); err != nil {
		t.Fatalf("read command reply: %v", err)
	}
	if reply.Error || reply.Value == nil || *reply.Value != command {
		t.Fatalf("unexpected command reply: %+v", reply)
	}
}

func readUpdate(t *testing.T, ctx context.Context, conn *websocket.Conn) proto.Update {
	t.Helper()

	var update proto.Update
	if err := wsjson.Read(ctx, conn, &update); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if update.MessageType != proto.UpdateTypeMessage {
		t.Fatalf("unexpected update type: %+v", update)
	}
	return update
}

func submit(t *testing.T, env *testEnv, token, channel, content string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/api/messages/"+channel, strings.NewReader(content))
	if err != nil {
		t.Fatalf("build submit request: %v", err)
	}
	if token != "" {
		req.Header.Set("X-Auth-Token", token)
	}

	resp, err := env.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("submit request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func waitForSubscribers(t *testing.T, bus *core.Bus, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if bus.SubscriberCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d bus subscribers, have %d", want, bus.SubscriberCount())
}

func TestHandshakeInvalidTokenRejected(t *testing.T) {
	env := startTestServer(t, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, env)
	if err := conn.Write(ctx, websocket.MessageText, []byte("not-a-token")); err != nil {
		t.Fatalf("send garbage token: %v", err)
	}

	var reply proto.StatusReply
	if err := wsjson.Read(ctx, conn, &reply); err != nil {
		t.Fatalf("read rejection: %v", err)
	}
	if !reply.Error || reply.Value != "invalid token" {
		t.Fatalf("unexpected rejection reply: %+v", reply)
	}

	// The server closes after the rejection; the next read must fail.
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatal("expected connection to be closed after rejection")
	}

	if n := env.bus.SubscriberCount(); n != 0 {
		t.Fatalf("rejected connection must not subscribe, have %d subscribers", n)
	}
}

func TestHandshakeNoFirstFrameNeverSubscribes(t *testing.T) {
	env := startTestServer(t, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, env)
	conn.Close(websocket.StatusNormalClosure, "leaving")

	// The session must unwind without ever reaching the bus. Hold the
	// assertion for a moment so a late subscribe would be caught.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if n := env.bus.SubscriberCount(); n != 0 {
			t.Fatalf("connection without a handshake frame must not subscribe, have %d", n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandshakeBinaryFirstFrameRejected(t *testing.T) {
	env := startTestServer(t, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, env)
	if err := conn.Write(ctx, websocket.MessageBinary, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("send binary frame: %v", err)
	}

	var reply proto.StatusReply
	if err := wsjson.Read(ctx, conn, &reply); err != nil {
		t.Fatalf("read rejection: %v", err)
	}
	if !reply.Error {
		t.Fatalf("expected rejection, got %+v", reply)
	}
	if n := env.bus.SubscriberCount(); n != 0 {
		t.Fatalf("rejected connection must not subscribe, have %d subscribers", n)
	}
}

func TestSubscriptionCommandAck(t *testing.T) {
	env := startTestServer(t, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialAndAuth(t, ctx, env, env.token(t, identityFor("alice")))
	setChannel(t, ctx, conn, "general")
	setChannel(t, ctx, conn, proto.CommandAll)
	setChannel(t, ctx, conn, proto.CommandNone)
}

func TestOversizeCommandLeavesFilterUnchanged(t *testing.T) {
	env := startTestServer(t, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialAndAuth(t, ctx, env, env.token(t, identityFor("alice")))
	waitForSubscribers(t, env.bus, 1)
	setChannel(t, ctx, conn, "general")

	oversize := strings.Repeat("x", proto.MaxChannelNameBytes+1)
	if err := conn.Write(ctx, websocket.MessageText, []byte(oversize)); err != nil {
		t.Fatalf("send oversize command: %v", err)
	}

	var reply proto.CommandReply
	if err := wsjson.Read(ctx, conn, &reply); err != nil {
		t.Fatalf("read oversize reply: %v", err)
	}
	if !reply.Error || reply.Value != nil {
		t.Fatalf("expected length error with null value, got %+v", reply)
	}

	// The filter must still be Named(general): an envelope on the oversize
	// channel is not delivered, one on general is.
	env.bus.Publish(core.Envelope{Channel: oversize, Content: "hidden", Sender: identityFor("bob")})
	env.bus.Publish(core.Envelope{Channel: "general", Content: "visible", Sender: identityFor("bob")})

	update := readUpdate(t, ctx, conn)
	if update.Content != "visible" {
		t.Fatalf("expected only the general message, got %+v", update)
	}
}

func TestFilterChangeIsImmediateAndOrdered(t *testing.T) {
	env := startTestServer(t, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialAndAuth(t, ctx, env, env.token(t, identityFor("alice")))
	waitForSubscribers(t, env.bus, 1)
	setChannel(t, ctx, conn, "x")

	env.bus.Publish(core.Envelope{Channel: "y", Content: "skipped", Sender: identityFor("bob")})
	env.bus.Publish(core.Envelope{Channel: "x", Content: "first", Sender: identityFor("bob")})
	env.bus.Publish(core.Envelope{Channel: "x", Content: "second", Sender: identityFor("bob")})

	if update := readUpdate(t, ctx, conn); update.Content != "first" {
		t.Fatalf("expected first, got %+v", update)
	}
	if update := readUpdate(t, ctx, conn); update.Content != "second" {
		t.Fatalf("expected second, got %+v", update)
	}
}

func TestEndToEndRelay(t *testing.T) {
	env := startTestServer(t, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	connA := dialAndAuth(t, ctx, env, env.token(t, identityFor("alice")))
	connB := dialAndAuth(t, ctx, env, env.token(t, identityFor("bob")))
	waitForSubscribers(t, env.bus, 2)

	setChannel(t, ctx, connA, "general")
	setChannel(t, ctx, connB, proto.CommandAll)

	sender := identityFor("carol")
	resp := submit(t, env, env.token(t, sender), "general", "hello")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit failed with status %d", resp.StatusCode)
	}

	updateA := readUpdate(t, ctx, connA)
	if updateA.Content != "hello" || updateA.Sender == nil || *updateA.Sender != sender {
		t.Fatalf("unexpected update for A: %+v", updateA)
	}
	updateB := readUpdate(t, ctx, connB)
	if updateB.Content != "hello" {
		t.Fatalf("unexpected update for B: %+v", updateB)
	}

	// A message on another channel reaches only B. A's next frame must be
	// the marker that follows, not the random-channel message.
	submit(t, env, env.token(t, sender), "random", "only-for-b")
	submit(t, env, env.token(t, sender), "general", "marker")

	if update := readUpdate(t, ctx, connB); update.Content != "only-for-b" {
		t.Fatalf("B expected only-for-b, got %+v", update)
	}
	if update := readUpdate(t, ctx, connA); update.Content != "marker" {
		t.Fatalf("A expected marker, got %+v", update)
	}
}

func TestNonConformingFramesCloseConnection(t *testing.T) {
	env := startTestServer(t, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialAndAuth(t, ctx, env, env.token(t, identityFor("alice")))

	for i := 0; i < maxNonConformingFrames+1; i++ {
		if err := conn.Write(ctx, websocket.MessageBinary, []byte{0xff}); err != nil {
			t.Fatalf("send binary frame %d: %v", i, err)
		}
	}

	_, _, err := conn.Read(ctx)
	if err == nil {
		t.Fatal("expected close after exceeding the frame threshold")
	}
	if status := websocket.CloseStatus(err); status != websocket.StatusUnsupportedData {
		t.Fatalf("expected unsupported data close status, got %v (%v)", status, err)
	}
}

func TestBusCloseEndsSessions(t *testing.T) {
	env := startTestServer(t, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialAndAuth(t, ctx, env, env.token(t, identityFor("alice")))
	waitForSubscribers(t, env.bus, 1)

	env.bus.Close()

	// The forwarder observes the closed bus and the session winds down.
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatal("expected connection to close after bus shutdown")
	}
}

func TestForwardLoopEndsOnLag(t *testing.T) {
	bus := core.NewBus(2)
	defer bus.Close()
	sub := bus.Subscribe()
	defer sub.Close()

	for i := 0; i < 5; i++ {
		bus.Publish(core.Envelope{Channel: "x", Content: "flood"})
	}

	logger := zerolog.Nop()
	sess := &session{
		id:     "test",
		filter: core.NewFilter(),
		sub:    sub,
		remote: "test",
		log:    &logger,
	}

	err := sess.forwardLoop(context.Background())
	var lag *core.LagError
	if !errors.As(err, &lag) {
		t.Fatalf("expected lag to end the forwarder, got %v", err)
	}
	if lag.Missed != 3 {
		t.Fatalf("expected 3 missed envelopes, got %d", lag.Missed)
	}
}

func TestForwardLoopEndsQuietlyOnBusClose(t *testing.T) {
	bus := core.NewBus(2)
	sub := bus.Subscribe()

	logger := zerolog.Nop()
	sess := &session{
		id:     "test",
		filter: core.NewFilter(),
		sub:    sub,
		remote: "test",
		log:    &logger,
	}

	done := make(chan error, 1)
	go func() {
		done <- sess.forwardLoop(context.Background())
	}()

	bus.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("bus close should end the forwarder without error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("forwarder did not observe bus close")
	}
}
