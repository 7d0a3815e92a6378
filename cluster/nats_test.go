package cluster

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func runNATSServer(t *testing.T) *server.Server {
	t.Helper()
	s, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatal(err)
	}
	go s.Start()
	if !s.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(s.Shutdown)
	return s
}

func TestNATSExchangeAndBarrier(t *testing.T) {
	s := runNATSServer(t)
	const size = 3

	ranks := make([]*NATS, size)
	for i := range ranks {
		n, err := DialNATS(s.ClientURL(), "trap.test", i, size)
		if err != nil {
			t.Fatal(err)
		}
		ranks[i] = n
		defer n.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for w := 1; w < size; w++ {
		if err := ranks[0].Send(ctx, []byte{byte(w)}, w, TagDescriptor); err != nil {
			t.Fatal(err)
		}
	}
	for w := 1; w < size; w++ {
		got, err := ranks[w].Recv(ctx, 0, TagDescriptor)
		if err != nil || len(got) != 1 || int(got[0]) != w {
			t.Fatalf("rank %d Recv = %v, %v", w, got, err)
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, size)
	for i, r := range ranks {
		wg.Add(1)
		go func(i int, r *NATS) {
			defer wg.Done()
			errs[i] = Barrier(ctx, r)
		}(i, r)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("rank %d: %v", i, err)
		}
	}
}

func TestNATSSendWaitsForLateSubscriber(t *testing.T) {
	s := runNATSServer(t)

	coord, err := DialNATS(s.ClientURL(), "trap.late", 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer coord.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sent := make(chan error, 1)
	go func() { sent <- coord.Send(ctx, []byte("late"), 1, TagDescriptor) }()

	time.Sleep(250 * time.Millisecond)
	nc, err := nats.Connect(s.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()
	worker, err := NewNATS(nc, "trap.late", 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer worker.Close()

	if err := <-sent; err != nil {
		t.Fatal(err)
	}
	got, err := worker.Recv(ctx, 0, TagDescriptor)
	if err != nil || string(got) != "late" {
		t.Fatalf("Recv = %q, %v", got, err)
	}
}

func TestNATSParseSubject(t *testing.T) {
	n := &NATS{size: 4}
	src, tag, err := n.parseSubject("a.b.2.1.3")
	if err != nil || src != 3 || tag != TagResult {
		t.Errorf("parseSubject = %d, %v, %v", src, tag, err)
	}
	if _, _, err := n.parseSubject("a.2.1.9"); err == nil {
		t.Error("expected out of range source to fail")
	}
	if _, _, err := n.parseSubject("a.b"); err == nil {
		t.Error("expected short subject to fail")
	}
}
