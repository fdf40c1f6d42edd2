package gateway

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/tmarsh12/livestage/go/internal/events"
)

// A viewer dropping mid-broadcast must not take the fan-out goroutine
// down with it. The broadcast loop snapshots connections outside the
// lock, so sends race the deferred unregister from the pumps.
func TestBroadcastRacingDisconnectDoesNotPanic(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), nil)

	payload, _ := json.Marshal(events.StateChangedPayload{})
	env := &events.Envelope{
		EventSlug: "hackathon-2026",
		Type:      events.TypeStateChanged,
		Payload:   payload,
	}

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
				cm.handleBroadcast(BroadcastMessage{EventSlug: "hackathon-2026", Envelope: env})
			}
		}
	}()

	for i := 0; i < 500; i++ {
		conn := &Connection{
			ID:        fmt.Sprintf("conn-%d", i),
			ViewerID:  "viewer-1",
			EventSlug: "hackathon-2026",
			Send:      make(chan []byte, 1024),
			done:      make(chan struct{}),
			Manager:   cm,
		}
		cm.registerConnection(conn)
		cm.unregisterConnection(conn)
	}

	close(stop)
	wg.Wait()
}

func TestUnregisterSignalsDoneExactlyOnce(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), nil)
	conn := &Connection{
		ID:        "conn-1",
		EventSlug: "hackathon-2026",
		Send:      make(chan []byte, 1),
		done:      make(chan struct{}),
		Manager:   cm,
	}
	cm.registerConnection(conn)

	cm.unregisterConnection(conn)
	cm.unregisterConnection(conn)
	conn.doneOnce.Do(func() { close(conn.done) })

	select {
	case <-conn.done:
	default:
		t.Fatal("done channel not closed after unregister")
	}

	// Send must stay open so a racing broadcast cannot panic.
	select {
	case conn.Send <- []byte("{}"):
	default:
		t.Fatal("send channel unexpectedly unavailable")
	}
}
