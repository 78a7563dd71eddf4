// Package config parses the CLI surface for both binaries into immutable
// configuration structs. Config is parsed once at process startup and
// never mutated afterward — there is no live-reload story for a
// measurement tool whose whole point is a single reproducible run.
package config

import (
	"flag"
	"net"
	"strconv"

	"github.com/scslab/mutated/internal/errs"
	"github.com/scslab/mutated/internal/gen"
)

// Generator names the wire protocol a client run drives.
type Generator string

const (
	Synthetic Generator = "synthetic"
	Memcache  Generator = "memcache"
)

// Client holds every parsed option for mutated-client.
type Client struct {
	Addr      string
	Port      int
	Generator Generator

	// ServiceUsMean is the mean service time in microseconds when
	// Generator is Synthetic, and setget (0..1, the Bernoulli probability
	// that a request is a SET rather than a GET — setget=0 means all
	// GETs) when Generator is Memcache — the same positional argument is
	// overloaded for both roles.
	ServiceUsMean float64
	ReqPerSec     float64

	MachineReadable bool
	SpinWait        bool
	WarmupSeconds   int
	CooldownSeconds int
	Samples         int
	Label           string
	ConnMode        gen.ConnMode
	ServiceDist     gen.ServiceDist
	ConnCount       int
	PinCPU          int
}

// ParseClient parses mutated-client's argument vector (excluding argv[0]).
func ParseClient(args []string) (*Client, error) {
	fs := flag.NewFlagSet("mutated-client", flag.ContinueOnError)
	raw := fs.Bool("r", false, "machine-readable output (raw samples instead of table)")
	spin := fs.Bool("e", false, "use spin-wait reactor instead of blocking wait")
	warm := fs.Int("w", 5, "warm-up seconds")
	cool := fs.Int("c", 5, "cool-down seconds")
	samples := fs.Int("s", -1, "measurement sample count (default 10x req/s)")
	label := fs.String("l", "", "label for machine-readable output")
	mode := fs.String("m", "round_robin", "connection mode: per_request, round_robin, random")
	dist := fs.String("d", "exp", "service-time distribution for synthetic: fixed, exp, lognorm")
	connCount := fs.Int("n", 10, "connection pool size")
	pinCPU := fs.Int("p", -1, "pin the reactor thread to this CPU index (default: unpinned)")

	if err := fs.Parse(args); err != nil {
		return nil, errs.Newf(errs.Config, "%v", err)
	}
	rest := fs.Args()
	if len(rest) != 4 {
		return nil, errs.Newf(errs.Config, "usage: mutated-client [options] <ip:port> <generator> <service_us_mean> <req_per_s>")
	}

	addr, port, err := splitAddr(rest[0])
	if err != nil {
		return nil, err
	}

	genName := Generator(rest[1])
	if genName != Synthetic && genName != Memcache {
		return nil, errs.Newf(errs.Config, "unknown generator %q", rest[1])
	}

	serviceUsMean, err := strconv.ParseFloat(rest[2], 64)
	if err != nil {
		return nil, errs.Newf(errs.Config, "invalid service_us_mean %q: %v", rest[2], err)
	}
	reqPerSec, err := strconv.ParseFloat(rest[3], 64)
	if err != nil || reqPerSec <= 0 {
		return nil, errs.Newf(errs.Config, "invalid req_per_s %q", rest[3])
	}

	connMode, err := parseConnMode(*mode)
	if err != nil {
		return nil, err
	}
	serviceDist, err := parseServiceDist(*dist)
	if err != nil {
		return nil, err
	}

	sampleCount := *samples
	if sampleCount < 0 {
		sampleCount = int(10 * reqPerSec)
	}
	if sampleCount == 0 {
		return nil, errs.New(errs.Config, "-s (measurement sample count) must be positive")
	}

	return &Client{
		Addr: addr, Port: port,
		Generator:       genName,
		ServiceUsMean:   serviceUsMean,
		ReqPerSec:       reqPerSec,
		MachineReadable: *raw,
		SpinWait:        *spin,
		WarmupSeconds:   *warm,
		CooldownSeconds: *cool,
		Samples:         sampleCount,
		Label:           *label,
		ConnMode:        connMode,
		ServiceDist:     serviceDist,
		ConnCount:       *connCount,
		PinCPU:          *pinCPU,
	}, nil
}

// Load holds every parsed option for mutated-load.
type Load struct {
	Addr      string
	Port      int
	Keys      int
	ValueSize int
	StartSeq  int
	Batch     int
	Notify    int
}

// ParseLoad parses mutated-load's argument vector (excluding argv[0]).
func ParseLoad(args []string) (*Load, error) {
	fs := flag.NewFlagSet("mutated-load", flag.ContinueOnError)
	keys := fs.Int("k", 10000, "number of keys to load")
	valueSize := fs.Int("v", 4096, "value size in bytes")
	startSeq := fs.Int("n", 1, "starting sequence id")
	batch := fs.Int("b", 100, "in-flight batch size")
	notify := fs.Int("e", 25, "notify window for quiet SET commands")

	if err := fs.Parse(args); err != nil {
		return nil, errs.Newf(errs.Config, "%v", err)
	}
	rest := fs.Args()
	if len(rest) != 1 {
		return nil, errs.New(errs.Config, "usage: mutated-load [options] <ip:port>")
	}
	addr, port, err := splitAddr(rest[0])
	if err != nil {
		return nil, err
	}
	if *notify <= 0 {
		return nil, errs.New(errs.Config, "-e (notify window) must be positive")
	}
	return &Load{
		Addr: addr, Port: port,
		Keys: *keys, ValueSize: *valueSize,
		StartSeq: *startSeq, Batch: *batch, Notify: *notify,
	}, nil
}

func splitAddr(s string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, errs.Newf(errs.Config, "invalid address %q: %v", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, errs.Newf(errs.Config, "invalid port in %q", s)
	}
	return host, port, nil
}

func parseConnMode(s string) (gen.ConnMode, error) {
	switch s {
	case "per_request":
		return gen.PerRequest, nil
	case "round_robin":
		return gen.RoundRobin, nil
	case "random":
		return gen.Random, nil
	default:
		return 0, errs.Newf(errs.Config, "unknown connection mode %q", s)
	}
}

func parseServiceDist(s string) (gen.ServiceDist, error) {
	switch s {
	case "fixed":
		return gen.DistFixed, nil
	case "exp":
		return gen.DistExponential, nil
	case "lognorm":
		return gen.DistLognorm, nil
	default:
		return 0, errs.Newf(errs.Config, "unknown service distribution %q", s)
	}
}
