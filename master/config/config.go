package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"gopkg.in/ini.v1"
)

var (
	ConfigFile string // optional INI file, overridden by explicit flags

	LowerBound float64 = 0.0       // lower bound of the integral
	UpperBound float64 = 10.0      // upper bound of the integral
	SliceCount int     = 1_000_000 // number of trapezoid slices
	Function   string  = "x^2"     // catalogue name or JavaScript expression of x
	Precision  uint    = 256       // mantissa bits of partial and final sums
	Partition  string  = "cumulative"

	Transport string = "local" // local | rpc | nats
	Workers   int    = 4       // worker goroutines for the local transport
	Rank      int    = 0
	Size      int    = 0
	Peers     string = "" // comma separated host:port per rank, rpc transport
	NATSURL   string = "nats://127.0.0.1:4222"
	Subject   string = "trap"

	ResultTimeout     time.Duration = time.Minute
	SendTimeout       time.Duration = time.Minute
	DescriptorTimeout time.Duration = time.Minute
	BarrierTimeout    time.Duration = 30 * time.Second

	HTTPAddr  string = "" // status API, coordinator only
	LogLevel  string = "info"
	LogFormat string = "text"

	Report        string = "log" // comma list of log, kafka, beanstalk, mysql
	KafkaBrokers  string = "127.0.0.1:9092"
	KafkaTopic    string = "trap-results"
	BeanstalkHost string = "127.0.0.1:11300"
	BeanstalkTube string = "trap-results"
	MySQLDSN      string = ""
)

var (
	transports = []string{"local", "rpc", "nats"}
	reporters  = []string{"log", "kafka", "beanstalk", "mysql"}
)

// sections maps every flag that may come from the INI file to its section.
var sections = map[string]string{
	"lower":              "run",
	"upper":              "run",
	"slices":             "run",
	"function":           "run",
	"precision":          "run",
	"partition":          "run",
	"transport":          "cluster",
	"workers":            "cluster",
	"rank":               "cluster",
	"size":               "cluster",
	"peers":              "cluster",
	"nats":               "cluster",
	"subject":            "cluster",
	"result-timeout":     "cluster",
	"send-timeout":       "cluster",
	"descriptor-timeout": "cluster",
	"barrier-timeout":    "cluster",
	"http":               "cluster",
	"log-level":          "log",
	"log-format":         "log",
	"report":             "report",
	"kafka-brokers":      "kafka",
	"kafka-topic":        "kafka",
	"beanstalk-host":     "beanstalk",
	"beanstalk-tube":     "beanstalk",
	"mysql-dsn":          "mysql",
}

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("trapezoid", flag.ContinueOnError)

	fs.StringVar(&ConfigFile, "config", "", "INI file with [run] [cluster] [log] [report] [kafka] [beanstalk] [mysql] sections")

	fs.Float64Var(&LowerBound, "lower", 0.0, "lower bound of the integral")
	fs.Float64Var(&UpperBound, "upper", 10.0, "upper bound of the integral")
	fs.IntVar(&SliceCount, "slices", 1_000_000, "number of trapezoid slices")
	fs.StringVar(&Function, "function", "x^2", "integrand name or JavaScript expression of x")
	fs.UintVar(&Precision, "precision", 256, "mantissa bits of the partial sums")
	fs.StringVar(&Partition, "partition", "cumulative", "partition policy: cumulative | base-stride")

	fs.StringVar(&Transport, "transport", "local", "transport: local | rpc | nats")
	fs.IntVar(&Workers, "workers", 4, "worker count for the local transport")
	fs.IntVar(&Rank, "rank", 0, "rank of this process (rpc, nats)")
	fs.IntVar(&Size, "size", 0, "cluster size including the coordinator (nats)")
	fs.StringVar(&Peers, "peers", "", "comma separated host:port of every rank (rpc)")
	fs.StringVar(&NATSURL, "nats", "nats://127.0.0.1:4222", "NATS server URL")
	fs.StringVar(&Subject, "subject", "trap", "NATS subject prefix")

	fs.DurationVar(&ResultTimeout, "result-timeout", time.Minute, "coordinator wait per worker result")
	fs.DurationVar(&SendTimeout, "send-timeout", time.Minute, "wait for a peer to accept a descriptor or result")
	fs.DurationVar(&DescriptorTimeout, "descriptor-timeout", time.Minute, "worker wait for its descriptor")
	fs.DurationVar(&BarrierTimeout, "barrier-timeout", 30*time.Second, "final barrier wait")

	fs.StringVar(&HTTPAddr, "http", "", "status API address on the coordinator, e.g. :8080")
	fs.StringVar(&LogLevel, "log-level", "info", "debug | info | warn | error")
	fs.StringVar(&LogFormat, "log-format", "text", "text | json")

	fs.StringVar(&Report, "report", "log", "comma list of log, kafka, beanstalk, mysql")
	fs.StringVar(&KafkaBrokers, "kafka-brokers", "127.0.0.1:9092", "comma separated Kafka brokers")
	fs.StringVar(&KafkaTopic, "kafka-topic", "trap-results", "Kafka topic for run summaries")
	fs.StringVar(&BeanstalkHost, "beanstalk-host", "127.0.0.1:11300", "beanstalkd address")
	fs.StringVar(&BeanstalkTube, "beanstalk-tube", "trap-results", "beanstalkd tube for run summaries")
	fs.StringVar(&MySQLDSN, "mysql-dsn", "", "MySQL DSN for the run history")

	return fs
}

// Load parses the process command line.
func Load() error {
	return Parse(os.Args[1:])
}

// Parse resets every setting to its default, then applies the INI file named
// by -config and finally the explicit flags in args.
func Parse(args []string) error {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return err
	}

	if ConfigFile != "" {
		explicit := map[string]bool{}
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

		if err := applyFile(fs, ConfigFile, explicit); err != nil {
			return err
		}
	}
	return validate()
}

func applyFile(fs *flag.FlagSet, path string, explicit map[string]bool) error {
	file, err := ini.Load(path)
	if err != nil {
		return errors.Wrapf(err, "load config %s", path)
	}

	for name, section := range sections {
		if explicit[name] || !file.Section(section).HasKey(name) {
			continue
		}
		value := file.Section(section).Key(name).String()
		if err := fs.Set(name, value); err != nil {
			return errors.Wrapf(err, "%s: [%s] %s", path, section, name)
		}
	}
	return nil
}

func validate() error {
	if !slices.Contains(transports, Transport) {
		return errors.Errorf("unknown transport %q", Transport)
	}
	for _, r := range ReportList() {
		if !slices.Contains(reporters, r) {
			return errors.Errorf("unknown reporter %q", r)
		}
	}

	switch Transport {
	case "local":
		if Workers < 0 {
			return errors.Errorf("workers %d must not be negative", Workers)
		}
	case "rpc":
		if n := len(PeerList()); n < 1 || Rank < 0 || Rank >= n {
			return errors.Errorf("rank %d outside the %d peers", Rank, n)
		}
	case "nats":
		if Size < 1 || Rank < 0 || Rank >= Size {
			return errors.Errorf("rank %d outside cluster size %d", Rank, Size)
		}
	}
	return nil
}

// PeerList returns the rpc peer addresses in rank order.
func PeerList() []string { return splitList(Peers) }

// ReportList returns the configured reporter names.
func ReportList() []string { return splitList(Report) }

// BrokerList returns the Kafka broker addresses.
func BrokerList() []string { return splitList(KafkaBrokers) }

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
