package stream

import (
	"testing"

	"github.com/Anuvesh07/Planicorn/domain"
)

func TestPublishReachesAllAccountSessions(t *testing.T) {
	hub := NewHub()
	first := hub.Subscribe("alice")
	second := hub.Subscribe("alice")

	ev := domain.NewEvent(domain.EventTaskCreated, domain.Task{ID: "t1", OwnerID: "alice"})
	hub.Publish("alice", ev)

	for _, ch := range []chan domain.Event{first, second} {
		select {
		case got := <-ch:
			if got.TaskID != "t1" {
				t.Fatalf("unexpected event %+v", got)
			}
		default:
			t.Fatal("expected event delivered to session")
		}
	}
}

func TestPublishScopedToAccount(t *testing.T) {
	hub := NewHub()
	alice := hub.Subscribe("alice")
	bob := hub.Subscribe("bob")

	hub.Publish("alice", domain.NewEvent(domain.EventTaskCreated, domain.Task{ID: "t1", OwnerID: "alice"}))

	select {
	case <-alice:
	default:
		t.Fatal("expected alice to receive her event")
	}
	select {
	case ev := <-bob:
		t.Fatalf("bob observed alice's event: %+v", ev)
	default:
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe("alice")
	hub.Unsubscribe("alice", ch)

	hub.Publish("alice", domain.NewEvent(domain.EventTaskUpdated, domain.Task{ID: "t1"}))
	select {
	case ev := <-ch:
		t.Fatalf("received event after unsubscribe: %+v", ev)
	default:
	}
	if hub.SessionCount("alice") != 0 {
		t.Fatalf("expected 0 sessions, got %d", hub.SessionCount("alice"))
	}
}

func TestPublishDropsWhenSessionIsSlow(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe("alice")

	// Fill the session buffer and keep publishing; Publish must not block.
	for i := 0; i < sessionBuffer+5; i++ {
		hub.Publish("alice", domain.NewEvent(domain.EventTaskUpdated, domain.Task{ID: "t1"}))
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}
	if received != sessionBuffer {
		t.Fatalf("expected %d buffered events, got %d", sessionBuffer, received)
	}
}

func TestPublishWithoutSessionsIsNoop(t *testing.T) {
	hub := NewHub()
	hub.Publish("nobody", domain.NewEvent(domain.EventTaskDeleted, domain.Task{ID: "t1"}))
}
