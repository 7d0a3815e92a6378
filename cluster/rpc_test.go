package cluster

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"
)

func newRPCPair(t *testing.T, size int) []*RPC {
	t.Helper()

	listeners := make([]net.Listener, size)
	peers := make([]string, size)
	for i := range listeners {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		listeners[i] = l
		peers[i] = l.Addr().String()
	}

	ranks := make([]*RPC, size)
	for i := range ranks {
		r, err := NewRPC(i, peers, listeners[i])
		if err != nil {
			t.Fatal(err)
		}
		ranks[i] = r
	}
	t.Cleanup(func() {
		for _, r := range ranks {
			r.Close()
		}
	})
	return ranks
}

func TestRPCExchange(t *testing.T) {
	ranks := newRPCPair(t, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ranks[0].Send(ctx, []byte("work"), 1, TagDescriptor); err != nil {
		t.Fatal(err)
	}
	got, err := ranks[1].Recv(ctx, 0, TagDescriptor)
	if err != nil || string(got) != "work" {
		t.Fatalf("Recv descriptor = %q, %v", got, err)
	}

	if err := ranks[1].Send(ctx, []byte("sum"), 0, TagResult); err != nil {
		t.Fatal(err)
	}
	got, err = ranks[0].Recv(ctx, 1, TagResult)
	if err != nil || string(got) != "sum" {
		t.Fatalf("Recv result = %q, %v", got, err)
	}
}

func TestRPCBarrier(t *testing.T) {
	ranks := newRPCPair(t, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, len(ranks))
	for i, r := range ranks {
		wg.Add(1)
		go func(i int, r *RPC) {
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

func TestRPCSendToUnreachablePeerTimesOut(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	dead, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	deadAddr := dead.Addr().String()
	dead.Close()

	r, err := NewRPC(0, []string{l.Addr().String(), deadAddr}, l)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := r.Send(ctx, []byte("x"), 1, TagDescriptor); err == nil {
		t.Fatal("expected send to unreachable peer to fail")
	}
}

func TestRPCCloseIsIdempotent(t *testing.T) {
	ranks := newRPCPair(t, 1)
	if err := ranks[0].Close(); err != nil {
		t.Fatal(err)
	}
	if err := ranks[0].Close(); err != nil {
		t.Fatal(err)
	}
}
