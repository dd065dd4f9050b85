package handler

import (
	"fmt"
	"testing"
	"time"

	"eload-service/internal/model"
)

func newTestClient(id, clientType string) *Client {
	return &Client{ID: id, Type: clientType, Send: make(chan []byte, 4)}
}

func waitClosed(t *testing.T, ch chan []byte) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("send channel was not closed")
		}
	}
}

func TestDeliverRightAfterRegister(t *testing.T) {
	for i := 0; i < 2000; i++ {
		cm := NewConnectionManager()
		client := newTestClient(fmt.Sprintf("client-%d", i), clientTypeEvents)

		cm.Register(client)
		if !cm.Deliver(client, []byte("initial_status")) {
			t.Fatalf("iteration %d: Deliver() reported a full buffer", i)
		}
		if len(client.Send) != 1 {
			t.Fatalf("iteration %d: initial message was dropped", i)
		}
		cm.Close()
	}
}

func TestDeliverSkipsUnknownClient(t *testing.T) {
	cm := NewConnectionManager()
	defer cm.Close()

	client := newTestClient("stranger", clientTypeEvents)
	cm.Deliver(client, []byte("x"))
	if len(client.Send) != 0 {
		t.Error("message delivered to an unregistered client")
	}
}

func TestDeliverReportsFullBuffer(t *testing.T) {
	cm := NewConnectionManager()
	defer cm.Close()

	client := &Client{ID: "slow", Type: clientTypeEvents, Send: make(chan []byte, 1)}
	cm.Register(client)
	if !cm.Deliver(client, []byte("1")) {
		t.Fatal("first Deliver() failed")
	}
	if cm.Deliver(client, []byte("2")) {
		t.Error("Deliver() into a full buffer reported success")
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	cm := NewConnectionManager()
	defer cm.Close()

	client := newTestClient("a", clientTypeMeasurements)
	cm.Register(client)
	cm.Unregister(client)
	waitClosed(t, client.Send)

	if stats := cm.GetStats(); stats.TotalConnections != 0 {
		t.Errorf("TotalConnections = %d, want 0", stats.TotalConnections)
	}
}

func TestCloseDisconnectsClients(t *testing.T) {
	cm := NewConnectionManager()

	before := newTestClient("before", clientTypeEvents)
	cm.Register(before)
	cm.Close()
	waitClosed(t, before.Send)

	after := newTestClient("after", clientTypeEvents)
	cm.Register(after)
	waitClosed(t, after.Send)
}

func TestClientsFor(t *testing.T) {
	cm := NewConnectionManager()
	defer cm.Close()

	meter := newTestClient("meter", clientTypeMeasurements)
	events := newTestClient("events", clientTypeEvents)
	cm.Register(meter)
	cm.Register(events)

	if got := cm.ClientsFor(model.EventMeasurement); len(got) != 1 || got[0] != meter {
		t.Errorf("ClientsFor(measurement) = %v", got)
	}
	if got := cm.ClientsFor(model.EventStatusChange); len(got) != 1 || got[0] != events {
		t.Errorf("ClientsFor(status) = %v", got)
	}
}
