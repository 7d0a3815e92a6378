package cluster

import (
	"context"
	"net"
	"net/rpc"
	"sync"
	"time"

	"github.com/pkg/errors"

	"ds-trapezoid.com/common/closer"
	"ds-trapezoid.com/logs"
)

const dialRetry = 200 * time.Millisecond

// DeliverArgs carries one tagged message to the destination rank.
type DeliverArgs struct {
	From    int
	Tag     int
	Payload []byte
}

// DeliverReply acknowledges that the payload reached the mailbox.
type DeliverReply struct{}

// MailboxRPC is the net/rpc service every rank exposes to its peers.
type MailboxRPC struct {
	box  *mailbox
	size int
}

// Deliver queues a payload sent by a peer.
func (m *MailboxRPC) Deliver(args *DeliverArgs, reply *DeliverReply) error {
	if err := checkRank(args.From, m.size); err != nil {
		return err
	}
	return m.box.deliver(context.Background(), args.From, Tag(args.Tag), args.Payload)
}

// RPC is a cluster rank reachable over TCP with net/rpc. peers lists the
// address of every rank, indexed by rank, like an MPI hostfile.
type RPC struct {
	rank     int
	peers    []string
	box      *mailbox
	listener net.Listener
	server   *rpc.Server

	mu      sync.Mutex
	clients map[int]*rpc.Client
	conns   map[net.Conn]struct{}
	wg      sync.WaitGroup
}

// ListenRPC listens on peers[rank] and serves the mailbox of that rank.
func ListenRPC(rank int, peers []string) (*RPC, error) {
	if err := checkRank(rank, len(peers)); err != nil {
		return nil, errors.Wrap(ErrBadRank, err.Error())
	}
	l, err := net.Listen("tcp", peers[rank])
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", peers[rank])
	}
	return NewRPC(rank, peers, l)
}

// NewRPC serves the mailbox of rank on an already open listener.
func NewRPC(rank int, peers []string, l net.Listener) (*RPC, error) {
	if err := checkRank(rank, len(peers)); err != nil {
		return nil, errors.Wrap(ErrBadRank, err.Error())
	}

	r := &RPC{
		rank:     rank,
		peers:    append([]string(nil), peers...),
		box:      newMailbox(),
		listener: l,
		server:   rpc.NewServer(),
		clients:  make(map[int]*rpc.Client),
		conns:    make(map[net.Conn]struct{}),
	}
	if err := r.server.RegisterName("Mailbox", &MailboxRPC{box: r.box, size: len(peers)}); err != nil {
		return nil, errors.Wrap(err, "register mailbox")
	}

	logs.Rank(rank).Info("RPC mailbox listening", "addr", l.Addr().String(), "size", len(peers))

	r.wg.Add(1)
	go r.serve()
	return r, nil
}

func (r *RPC) serve() {
	defer r.wg.Done()
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			if r.box.closed() {
				return
			}
			logs.Rank(r.rank).Warn("Failed to accept connection", "err", err)
			continue
		}

		r.mu.Lock()
		r.conns[conn] = struct{}{}
		r.mu.Unlock()

		go func() {
			r.server.ServeConn(conn)
			r.mu.Lock()
			delete(r.conns, conn)
			r.mu.Unlock()
		}()
	}
}

// Addr returns the address the mailbox listens on.
func (r *RPC) Addr() net.Addr { return r.listener.Addr() }

func (r *RPC) Rank() int { return r.rank }

func (r *RPC) Size() int { return len(r.peers) }

func (r *RPC) Send(ctx context.Context, payload []byte, dest int, tag Tag) error {
	if r.box.closed() {
		return ErrClosed
	}
	if err := checkRank(dest, len(r.peers)); err != nil {
		return errors.Wrap(ErrBadRank, err.Error())
	}
	if dest == r.rank {
		return wrapCtx(r.box.deliver(ctx, r.rank, tag, payload), "send", dest, tag)
	}

	client, err := r.client(ctx, dest)
	if err != nil {
		return err
	}

	args := &DeliverArgs{From: r.rank, Tag: int(tag), Payload: payload}
	call := client.Go("Mailbox.Deliver", args, &DeliverReply{}, make(chan *rpc.Call, 1))
	select {
	case <-call.Done:
		if call.Error != nil {
			r.drop(dest, client)
			return errors.Wrapf(call.Error, "deliver %s to rank %d", tag, dest)
		}
		return nil
	case <-ctx.Done():
		return wrapCtx(ctx.Err(), "send", dest, tag)
	}
}

func (r *RPC) Recv(ctx context.Context, source int, tag Tag) ([]byte, error) {
	if err := checkRank(source, len(r.peers)); err != nil {
		return nil, errors.Wrap(ErrBadRank, err.Error())
	}
	payload, err := r.box.receive(ctx, source, tag)
	return payload, wrapCtx(err, "receive", source, tag)
}

// client returns a cached connection to dest, dialing until ctx ends so that
// ranks may start in any order.
func (r *RPC) client(ctx context.Context, dest int) (*rpc.Client, error) {
	r.mu.Lock()
	c, ok := r.clients[dest]
	r.mu.Unlock()
	if ok {
		return c, nil
	}

	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", r.peers[dest])
		if err == nil {
			c = rpc.NewClient(conn)
			break
		}
		logs.Rank(r.rank).Debug("Dial failed, retrying", "peer", dest, "addr", r.peers[dest], "err", err)

		select {
		case <-time.After(dialRetry):
		case <-ctx.Done():
			return nil, errors.Wrapf(wrapCtx(ctx.Err(), "dial", dest, TagDescriptor), "last error: %v", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.clients[dest]; ok {
		closer.LogClose(c, "rpc client", logs.Rank(r.rank))
		return existing, nil
	}
	r.clients[dest] = c
	return c, nil
}

func (r *RPC) drop(dest int, c *rpc.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clients[dest] == c {
		delete(r.clients, dest)
	}
	closer.LogClose(c, "rpc client", logs.Rank(r.rank))
}

// Close stops the listener, closes every client and served connection and
// fails pending receives with ErrClosed.
func (r *RPC) Close() error {
	if r.box.closed() {
		return nil
	}
	r.box.close()
	err := r.listener.Close()

	r.mu.Lock()
	for dest, c := range r.clients {
		closer.LogClose(c, "rpc client", logs.Rank(r.rank))
		delete(r.clients, dest)
	}
	for conn := range r.conns {
		closer.LogClose(conn, "rpc conn", logs.Rank(r.rank))
	}
	r.mu.Unlock()

	r.wg.Wait()
	return err
}
