package probe

import (
	"fmt"
	"time"

	"github.com/goburrow/modbus"
)

// Client defines the subset of Modbus operations required by the prober.
type Client interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	Close() error
}

// Endpoint describes how to reach a Modbus slave for a single probe.
type Endpoint struct {
	Address        string
	UnitID         byte
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// ClientFactory is responsible for creating connected Modbus clients.
type ClientFactory func(cfg Endpoint) (Client, error)

type tcpClient struct {
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

// NewTCPClientFactory returns a factory that creates TCP Modbus clients.
// The connect phase is bounded by the endpoint's connect timeout; subsequent
// transactions are bounded by the read timeout, so a slow connect cannot
// consume the read budget.
func NewTCPClientFactory() ClientFactory {
	return func(cfg Endpoint) (Client, error) {
		if cfg.Address == "" {
			return nil, fmt.Errorf("endpoint address is required")
		}
		handler := modbus.NewTCPClientHandler(cfg.Address)
		handler.SlaveId = cfg.UnitID
		connectTimeout := cfg.ConnectTimeout
		if connectTimeout <= 0 {
			connectTimeout = 3 * time.Second
		}
		handler.Timeout = connectTimeout
		if err := handler.Connect(); err != nil {
			return nil, fmt.Errorf("connect %s: %w", cfg.Address, err)
		}
		readTimeout := cfg.ReadTimeout
		if readTimeout <= 0 {
			readTimeout = 5 * time.Second
		}
		handler.Timeout = readTimeout
		return &tcpClient{handler: handler, client: modbus.NewClient(handler)}, nil
	}
}

func (c *tcpClient) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	return c.client.ReadHoldingRegisters(address, quantity)
}

func (c *tcpClient) Close() error {
	if c.handler != nil {
		return c.handler.Close()
	}
	return nil
}
