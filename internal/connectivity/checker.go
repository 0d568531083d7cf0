package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"
)

const (
	ModeAuto   = "auto"
	ModeAlways = "always"
	ModeNever  = "never"

	DefaultProbeTimeout = 3 * time.Second
)

// Text of the remediation dialog shown instead of uploading.
const (
	OfflineTitle   = "No Internet Connection"
	OfflineMessage = "Please turn on your Internet connection."
)

// Checker answers whether an upload has a chance to reach the internet.
type Checker interface {
	Available(ctx context.Context) bool
}

// Static always gives the same answer.
type Static bool

func (s Static) Available(context.Context) bool {
	return bool(s)
}

// Interface is the subset of net.Interface the checker looks at.
type Interface struct {
	Name  string
	Flags net.Flags
	Addrs []net.Addr
}

type InterfaceLister func() ([]Interface, error)

type Dialer func(ctx context.Context, network, address string) (net.Conn, error)

// NetChecker requires an interface that is up, not loopback and holds a
// global unicast address. With a probe address it also requires a TCP
// connection to that address within the probe timeout.
type NetChecker struct {
	listInterfaces InterfaceLister
	dial           Dialer
	probeAddress   string
	probeTimeout   time.Duration
}

type Option func(*NetChecker)

func WithInterfaceLister(lister InterfaceLister) Option {
	return func(c *NetChecker) {
		c.listInterfaces = lister
	}
}

func WithDialer(dial Dialer) Option {
	return func(c *NetChecker) {
		c.dial = dial
	}
}

func NewNetChecker(probeAddress string, probeTimeout time.Duration, opts ...Option) *NetChecker {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	c := &NetChecker{
		listInterfaces: SystemInterfaces,
		dial:           (&net.Dialer{}).DialContext,
		probeAddress:   probeAddress,
		probeTimeout:   probeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *NetChecker) Available(ctx context.Context) bool {
	ifaces, err := c.listInterfaces()
	if err != nil {
		slog.Warn("failed to list network interfaces", "error", err)
		return false
	}

	active := ""
	for _, iface := range ifaces {
		if usable(iface) {
			active = iface.Name
			break
		}
	}
	if active == "" {
		slog.Info("no active network interface")
		return false
	}
	if c.probeAddress == "" {
		return true
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()
	conn, err := c.dial(probeCtx, "tcp", c.probeAddress)
	if err != nil {
		slog.Info("internet probe failed", "interface", active, "probe", c.probeAddress, "error", err)
		return false
	}
	_ = conn.Close()
	return true
}

func usable(iface Interface) bool {
	if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
		return false
	}
	for _, addr := range iface.Addrs {
		var ip net.IP
		switch a := addr.(type) {
		case *net.IPNet:
			ip = a.IP
		case *net.IPAddr:
			ip = a.IP
		}
		if ip != nil && ip.IsGlobalUnicast() {
			return true
		}
	}
	return false
}

// SystemInterfaces lists the host interfaces with their addresses.
func SystemInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	result := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			slog.Debug("skipping interface without addresses", "interface", iface.Name, "error", err)
			continue
		}
		result = append(result, Interface{Name: iface.Name, Flags: iface.Flags, Addrs: addrs})
	}
	return result, nil
}

// New builds the checker selected by the connectivity mode.
func New(mode, probeAddress string, probeTimeout time.Duration) (Checker, error) {
	switch mode {
	case ModeAlways:
		return Static(true), nil
	case ModeNever:
		return Static(false), nil
	case ModeAuto, "":
		return NewNetChecker(probeAddress, probeTimeout), nil
	default:
		return nil, fmt.Errorf("unsupported connectivity mode: %s", mode)
	}
}
