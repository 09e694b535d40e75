package probe

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"syscall"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"

	"github.com/marstek-tools/venus-setup/config"
	"github.com/marstek-tools/venus-setup/telemetry"
)

// Target identifies one physical Modbus server plus subdevice. Two targets
// are duplicates when host and unit id are equal; the port is not part of
// the identity.
type Target struct {
	Host   string
	Port   int
	UnitID int
}

// Resolver resolves symbolic host names. net.DefaultResolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Prober validates reachability of a Modbus server: one bounded TCP connect
// followed by one bounded holding-register read, classified into an Outcome.
// It never returns an error; every failure path resolves to an Outcome.
type Prober struct {
	cfg       config.ProbeConfig
	factory   ClientFactory
	resolver  Resolver
	logger    zerolog.Logger
	collector telemetry.Collector
}

// Option customises a Prober.
type Option func(*Prober)

// WithClientFactory replaces the Modbus transport, enabling fakes in tests.
func WithClientFactory(factory ClientFactory) Option {
	return func(p *Prober) {
		if factory != nil {
			p.factory = factory
		}
	}
}

// WithResolver replaces the host name resolver.
func WithResolver(resolver Resolver) Option {
	return func(p *Prober) {
		if resolver != nil {
			p.resolver = resolver
		}
	}
}

// WithLogger provides a custom logger instance for the prober.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Prober) {
		p.logger = logger
	}
}

// WithTelemetry injects a collector counting probe outcomes.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(p *Prober) {
		if collector != nil {
			p.collector = collector
		}
	}
}

// New builds a Prober with the given probe bounds.
func New(cfg config.ProbeConfig, opts ...Option) *Prober {
	p := &Prober{
		cfg:       cfg.Normalize(),
		factory:   NewTCPClientFactory(),
		resolver:  net.DefaultResolver,
		logger:    zerolog.Nop(),
		collector: telemetry.Noop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe attempts a TCP connect to the target and a single holding-register
// read addressed to its unit id. The connection is closed on every exit
// path, including cancellation of ctx while the read is outstanding.
func (p *Prober) Probe(ctx context.Context, target Target) Outcome {
	outcome := p.probe(ctx, target)
	p.collector.IncProbe(outcome.String())
	return outcome
}

func (p *Prober) probe(ctx context.Context, target Target) Outcome {
	logger := p.logger.With().Str("host", target.Host).Int("port", target.Port).Int("unit_id", target.UnitID).Logger()

	// Upstream form validation normally guarantees these ranges; the probe
	// may still be invoked from contexts that skipped it.
	if !config.ValidPort(target.Port) || !config.ValidUnitID(target.UnitID) {
		logger.Debug().Msg("probe rejected out-of-range parameters")
		return OutcomeInvalidParameter
	}
	if target.Host == "" {
		return OutcomeInvalidHost
	}
	if net.ParseIP(target.Host) == nil {
		if _, err := p.resolver.LookupHost(ctx, target.Host); err != nil {
			logger.Debug().Err(err).Msg("host resolution failed")
			return OutcomeInvalidHost
		}
	}

	client, err := p.factory(Endpoint{
		Address:        net.JoinHostPort(target.Host, strconv.Itoa(target.Port)),
		UnitID:         byte(target.UnitID),
		ConnectTimeout: p.cfg.ConnectTimeout.Duration,
		ReadTimeout:    p.cfg.ReadTimeout.Duration,
	})
	if err != nil {
		outcome := classifyConnectError(err)
		logger.Debug().Err(err).Str("outcome", outcome.String()).Msg("modbus connect failed")
		return outcome
	}

	var closeOnce sync.Once
	closeClient := func() {
		closeOnce.Do(func() {
			if err := client.Close(); err != nil {
				logger.Debug().Err(err).Msg("close modbus client")
			}
		})
	}
	defer closeClient()
	// Host cancellation during the read must still release the socket.
	stop := context.AfterFunc(ctx, closeClient)
	defer stop()

	if _, err := client.ReadHoldingRegisters(p.cfg.Register, 1); err != nil {
		outcome := classifyReadError(err)
		logger.Debug().Err(err).Str("outcome", outcome.String()).Uint16("register", p.cfg.Register).Msg("probe read classified")
		return outcome
	}
	logger.Debug().Uint16("register", p.cfg.Register).Msg("unit id answered with data")
	return OutcomeSuccess
}

func classifyConnectError(err error) Outcome {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return OutcomeConnectionRefused
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return OutcomePermissionDenied
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimedOut
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimedOut
	}
	return OutcomeCannotConnect
}

// classifyReadError maps a failed register read onto the probe taxonomy. A
// protocol exception in the illegal function/address/value or device failure
// family proves the unit id is alive on the bus, so it counts as success;
// any other exception, timeout or transport error degrades to
// OutcomeUnitNoResponse because the connection itself already succeeded.
func classifyReadError(err error) Outcome {
	var modbusErr *modbus.ModbusError
	if errors.As(err, &modbusErr) {
		switch modbusErr.ExceptionCode {
		case modbus.ExceptionCodeIllegalFunction,
			modbus.ExceptionCodeIllegalDataAddress,
			modbus.ExceptionCodeIllegalDataValue,
			modbus.ExceptionCodeServerDeviceFailure:
			return OutcomeSuccess
		default:
			return OutcomeUnitNoResponse
		}
	}
	return OutcomeUnitNoResponse
}
