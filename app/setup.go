package app

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"ds-trapezoid.com/cluster"
	"ds-trapezoid.com/logs"
	"ds-trapezoid.com/master/config"
	"ds-trapezoid.com/master/icalc"
	"ds-trapezoid.com/master/shared"
	"ds-trapezoid.com/report"
	"ds-trapezoid.com/worker/calculator"
)

// OptionsFromConfig builds the run options from the loaded config.
func OptionsFromConfig() (Options, error) {
	req, err := shared.NewRequest(config.LowerBound, config.UpperBound, config.SliceCount)
	if err != nil {
		return Options{}, err
	}
	f, err := calculator.Lookup(config.Function)
	if err != nil {
		return Options{}, err
	}
	policy, err := icalc.ParsePolicy(config.Partition)
	if err != nil {
		return Options{}, err
	}

	return Options{
		Request:   req,
		Integrand: f,
		Coordinator: icalc.Options{
			Policy:        policy,
			Precision:     config.Precision,
			SendTimeout:   config.SendTimeout,
			ResultTimeout: config.ResultTimeout,
		},
		Worker: calculator.Options{
			Precision:         config.Precision,
			DescriptorTimeout: config.DescriptorTimeout,
			SendTimeout:       config.SendTimeout,
		},
		BarrierTimeout: config.BarrierTimeout,
	}, nil
}

// Connect joins the configured rpc or nats cluster as config.Rank.
func Connect() (cluster.Context, error) {
	switch config.Transport {
	case "rpc":
		return cluster.ListenRPC(config.Rank, config.PeerList())
	case "nats":
		name := fmt.Sprintf("trapezoid-%s-%d", config.Subject, config.Rank)
		return cluster.DialNATS(config.NATSURL, config.Subject, config.Rank, config.Size, nats.Name(name))
	}
	return nil, errors.Errorf("transport %q does not join a remote cluster", config.Transport)
}

// Reporters opens every configured result sink. Sinks that fail to open are
// logged and skipped.
func Reporters(ctx context.Context) report.Multi {
	var m report.Multi
	for _, name := range config.ReportList() {
		var (
			r   report.Reporter
			err error
		)
		switch name {
		case "log":
			r = report.Log{Logger: logs.Log}
		case "kafka":
			r, err = report.NewKafka(config.BrokerList(), config.KafkaTopic)
		case "beanstalk":
			r, err = report.NewBeanstalk(config.BeanstalkHost, config.BeanstalkTube)
		case "mysql":
			r, err = report.OpenMySQL(ctx, config.MySQLDSN)
		}
		if err != nil {
			logs.Log.Error("Reporter unavailable", "reporter", name, "err", err)
			continue
		}
		m = append(m, r)
	}
	return m
}
