package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, bufio.NewReader(conn)
}

func readEnvelope(t *testing.T, r *bufio.Reader, timeout time.Duration) Envelope {
	t.Helper()
	type result struct {
		env Envelope
		err error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := r.ReadBytes('\n')
		if err != nil {
			ch <- result{err: err}
			return
		}
		var env Envelope
		ch <- result{env: env, err: json.Unmarshal(line, &env)}
	}()
	select {
	case res := <-ch:
		require.NoError(t, res.err)
		return res.env
	case <-time.After(timeout):
		t.Fatal("timed out waiting for envelope")
		return Envelope{}
	}
}

func TestAttach_SendsSnapshotThenLiveEvents(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	s.SetSnapshotFunc(func() json.RawMessage { return json.RawMessage(`{"tasks":[]}`) })

	_, err := s.Listen(ctx, 0)
	require.NoError(t, err)
	defer s.Close()

	conn, r := dial(t, s.Addr())
	_, err = conn.Write([]byte(`{"type":"ATTACH"}` + "\n"))
	require.NoError(t, err)

	snap := readEnvelope(t, r, time.Second)
	assert.Equal(t, EventSnapshot, snap.Type)
	assert.Equal(t, s.InstanceID(), snap.InstanceID)

	s.Broadcast(EventHeartbeat, map[string]int{"tick": 1})
	hb := readEnvelope(t, r, time.Second)
	assert.Equal(t, EventHeartbeat, hb.Type)
}

func TestDetach_DropsBacklogButKeepsConnection(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	s.SetSnapshotFunc(func() json.RawMessage { return json.RawMessage(`{}`) })
	_, err := s.Listen(ctx, 0)
	require.NoError(t, err)
	defer s.Close()

	conn, r := dial(t, s.Addr())
	_, err = conn.Write([]byte(`{"type":"ATTACH"}` + "\n"))
	require.NoError(t, err)
	_ = readEnvelope(t, r, time.Second) // snapshot

	_, err = conn.Write([]byte(`{"type":"DETACH"}` + "\n"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	s.Broadcast(EventHeartbeat, nil)
	// Connection must remain usable: re-attach and expect a fresh snapshot.
	_, err = conn.Write([]byte(`{"type":"ATTACH"}` + "\n"))
	require.NoError(t, err)
	env := readEnvelope(t, r, time.Second)
	assert.Equal(t, EventSnapshot, env.Type)
}

func TestCommand_IsQueuedForSchedulerIngest(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	_, err := s.Listen(ctx, 0)
	require.NoError(t, err)
	defer s.Close()

	conn, _ := dial(t, s.Addr())
	msg, _ := json.Marshal(Envelope{Type: CmdPauseTask, RequestID: "req-1", Payload: json.RawMessage(`{"task_id":"f-abcdef"}`)})
	_, err = conn.Write(append(msg, '\n'))
	require.NoError(t, err)

	select {
	case cmd := <-s.Commands():
		assert.Equal(t, CmdPauseTask, cmd.Type)
		assert.Equal(t, "req-1", cmd.RequestID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for queued command")
	}
}

func TestBroadcast_ConcurrentWithDisconnectDoesNotPanic(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	s.SetSnapshotFunc(func() json.RawMessage { return json.RawMessage(`{}`) })
	_, err := s.Listen(ctx, 0)
	require.NoError(t, err)
	defer s.Close()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				s.Broadcast(EventHeartbeat, map[string]int{"tick": 1})
			}
		}
	}()

	// Repeatedly attach-then-disconnect while broadcasts are in flight; a
	// client closing its outbound channel mid-broadcast must never panic
	// the sender.
	for i := 0; i < 200; i++ {
		conn, err := net.Dial("tcp", s.Addr())
		require.NoError(t, err)
		_, err = conn.Write([]byte(`{"type":"ATTACH"}` + "\n"))
		require.NoError(t, err)
		_ = conn.Close()
	}

	close(stop)
	wg.Wait()
}

func TestIsBrowserCommand(t *testing.T) {
	assert.True(t, IsBrowserCommand("BROWSER_NAVIGATE"))
	assert.False(t, IsBrowserCommand("PAUSE_TASK"))
	assert.False(t, IsBrowserCommand("BROWSER_"))
}
