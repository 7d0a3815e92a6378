package cluster

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"ds-trapezoid.com/logs"
)

const noResponderRetry = 100 * time.Millisecond

// NATS is a cluster rank whose messages travel over a NATS server. A message
// from source to dest with tag t is published on "<subject>.<dest>.<t>.<source>"
// as a request; the destination answers once the payload is in its mailbox,
// so Send blocks like a point-to-point send.
type NATS struct {
	rank    int
	size    int
	subject string
	conn    *nats.Conn
	owned   bool
	sub     *nats.Subscription
	box     *mailbox
}

// DialNATS connects to url and joins the cluster as rank of size.
func DialNATS(url, subject string, rank, size int, opts ...nats.Option) (*NATS, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to NATS at %s", url)
	}
	n, err := NewNATS(nc, subject, rank, size)
	if err != nil {
		nc.Close()
		return nil, err
	}
	n.owned = true
	return n, nil
}

// NewNATS joins the cluster over an existing connection. The connection is
// left open by Close.
func NewNATS(nc *nats.Conn, subject string, rank, size int) (*NATS, error) {
	if err := checkRank(rank, size); err != nil {
		return nil, errors.Wrap(ErrBadRank, err.Error())
	}
	if subject == "" {
		return nil, errors.New("cluster: empty NATS subject")
	}

	n := &NATS{
		rank:    rank,
		size:    size,
		subject: subject,
		conn:    nc,
		box:     newMailbox(),
	}

	sub, err := nc.Subscribe(fmt.Sprintf("%s.%d.>", subject, rank), n.handle)
	if err != nil {
		return nil, errors.Wrap(err, "subscribe to mailbox subject")
	}
	n.sub = sub
	if err := nc.Flush(); err != nil {
		return nil, errors.Wrap(err, "flush subscription")
	}

	logs.Rank(rank).Info("NATS mailbox subscribed", "subject", sub.Subject, "size", size)
	return n, nil
}

func (n *NATS) handle(msg *nats.Msg) {
	source, tag, err := n.parseSubject(msg.Subject)
	if err != nil {
		logs.Rank(n.rank).Warn("Dropping message", "subject", msg.Subject, "err", err)
		_ = msg.Respond([]byte(err.Error()))
		return
	}

	ack := []byte(nil)
	if err := n.box.deliver(context.Background(), source, tag, msg.Data); err != nil {
		ack = []byte(err.Error())
	}
	if err := msg.Respond(ack); err != nil {
		logs.Rank(n.rank).Warn("Failed to acknowledge message", "subject", msg.Subject, "err", err)
	}
}

// parseSubject reads the tag and source from the last two tokens, so the
// subject prefix itself may contain dots.
func (n *NATS) parseSubject(subject string) (int, Tag, error) {
	tokens := strings.Split(subject, ".")
	if len(tokens) < 3 {
		return 0, 0, errors.Errorf("malformed subject %q", subject)
	}
	tag, err := strconv.Atoi(tokens[len(tokens)-2])
	if err != nil {
		return 0, 0, errors.Wrapf(err, "tag in subject %q", subject)
	}
	source, err := strconv.Atoi(tokens[len(tokens)-1])
	if err != nil {
		return 0, 0, errors.Wrapf(err, "source in subject %q", subject)
	}
	if err := checkRank(source, n.size); err != nil {
		return 0, 0, err
	}
	return source, Tag(tag), nil
}

func (n *NATS) Rank() int { return n.rank }

func (n *NATS) Size() int { return n.size }

func (n *NATS) Send(ctx context.Context, payload []byte, dest int, tag Tag) error {
	if n.box.closed() {
		return ErrClosed
	}
	if err := checkRank(dest, n.size); err != nil {
		return errors.Wrap(ErrBadRank, err.Error())
	}

	subj := fmt.Sprintf("%s.%d.%d.%d", n.subject, dest, int(tag), n.rank)
	for {
		msg, err := n.conn.RequestWithContext(ctx, subj, payload)
		if err == nil {
			if len(msg.Data) > 0 {
				return errors.Errorf("rank %d rejected %s: %s", dest, tag, msg.Data)
			}
			return nil
		}
		if !errors.Is(err, nats.ErrNoResponders) {
			return wrapCtx(errors.Wrapf(err, "request %s", subj), "send", dest, tag)
		}

		// The peer has not subscribed yet.
		select {
		case <-time.After(noResponderRetry):
		case <-ctx.Done():
			return wrapCtx(ctx.Err(), "send", dest, tag)
		}
	}
}

func (n *NATS) Recv(ctx context.Context, source int, tag Tag) ([]byte, error) {
	if err := checkRank(source, n.size); err != nil {
		return nil, errors.Wrap(ErrBadRank, err.Error())
	}
	payload, err := n.box.receive(ctx, source, tag)
	return payload, wrapCtx(err, "receive", source, tag)
}

func (n *NATS) Close() error {
	if n.box.closed() {
		return nil
	}
	n.box.close()

	var err error
	if n.sub != nil {
		err = n.sub.Unsubscribe()
	}
	if n.owned {
		n.conn.Close()
	}
	return err
}
