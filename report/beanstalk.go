package report

import (
	"context"
	"time"

	"github.com/beanstalkd/go-beanstalk"
	"github.com/pkg/errors"
)

// Beanstalk puts summaries as JSON jobs into a tube.
type Beanstalk struct {
	conn *beanstalk.Conn
	tube *beanstalk.Tube
}

const (
	jobPriority = 1
	jobTTR      = time.Minute
)

// NewBeanstalk dials beanstalkd at host.
func NewBeanstalk(host, tube string) (*Beanstalk, error) {
	if host == "" {
		return nil, errors.New("beanstalk host is empty")
	}
	if tube == "" {
		return nil, errors.New("tube name is empty")
	}

	conn, err := beanstalk.Dial("tcp", host)
	if err != nil {
		return nil, errors.Wrap(err, "beanstalk")
	}
	return &Beanstalk{
		conn: conn,
		tube: &beanstalk.Tube{Conn: conn, Name: tube},
	}, nil
}

func (b *Beanstalk) Report(_ context.Context, s Summary) error {
	body, err := s.JSON()
	if err != nil {
		return wrapReport(err, "beanstalk")
	}
	_, err = b.tube.Put(body, jobPriority, 0, jobTTR)
	return wrapReport(err, "beanstalk")
}

func (b *Beanstalk) Close() error {
	return b.conn.Close()
}
