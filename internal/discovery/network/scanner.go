// internal/discovery/network/scanner.go
package network

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"go.uber.org/zap"

	"eload-service/internal/config"
	"eload-service/internal/discovery"
	"eload-service/internal/model"
	"eload-service/internal/protocol"
	"eload-service/pkg/driver"
)

const (
	// maxHosts bounds the hosts expanded from one prefix
	maxHosts = 1024

	defaultWorkers = 32
)

// Config for the network scanner
type Config struct {
	// Targets are host addresses or CIDR prefixes such as 192.168.1.0/24
	Targets []string
	// Network holds the port and timeout used for every probe; the host
	// field is ignored
	Network config.NetworkConfig
	// Workers is the number of hosts probed in parallel
	Workers int
}

// Scanner probes LAN addresses for KEL loads over UDP
type Scanner struct {
	logger *zap.Logger
	config *Config
	dial   discovery.LinkDialer
}

// NewScanner creates a network scanner
func NewScanner(logger *zap.Logger, cfg *Config) *Scanner {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}

	s := &Scanner{
		logger: logger.With(zap.String("scanner", "network")),
		config: cfg,
	}
	s.dial = s.dialHost
	return s
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "network"
}

// IsAvailable reports whether any target is configured
func (s *Scanner) IsAvailable() bool {
	return len(s.config.Targets) > 0
}

// Scan probes every target address
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredLoad, error) {
	hosts, err := ExpandTargets(s.config.Targets)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Probing network hosts",
		zap.Int("hosts", len(hosts)),
		zap.Int("workers", s.config.Workers),
	)

	results := make([]*discovery.DiscoveredLoad, len(hosts))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < s.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				found, _ := discovery.ProbeAddresses(ctx, model.ConnectionTypeUDP, hosts[i:i+1], s.dial, s.logger)
				if len(found) == 1 {
					results[i] = found[0]
				}
			}
		}()
	}

feed:
	for i := range hosts {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	var loads []*discovery.DiscoveredLoad
	for _, load := range results {
		if load != nil {
			loads = append(loads, load)
		}
	}
	return loads, ctx.Err()
}

func (s *Scanner) dialHost(host string) (driver.Link, error) {
	cfg := &config.DeviceConfig{
		ConnectionType: "udp",
		Network:        s.config.Network,
	}
	cfg.Network.Host = host

	proto, err := protocol.CreateProtocol(cfg, s.logger)
	if err != nil {
		return nil, err
	}
	return protocol.NewLineChannel(proto, s.logger), nil
}

// ExpandTargets turns addresses and prefixes into a list of host addresses.
// Network and broadcast addresses of IPv4 prefixes are skipped.
func ExpandTargets(targets []string) ([]string, error) {
	var hosts []string
	for _, target := range targets {
		if addr, err := netip.ParseAddr(target); err == nil {
			hosts = append(hosts, addr.String())
			continue
		}

		prefix, err := netip.ParsePrefix(target)
		if err != nil {
			return nil, fmt.Errorf("invalid scan target %q: %w", target, err)
		}
		prefix = prefix.Masked()

		bits := prefix.Addr().BitLen() - prefix.Bits()
		if bits > 10 {
			return nil, fmt.Errorf("scan target %s exceeds %d hosts", target, maxHosts)
		}

		first := prefix.Addr()
		count := 1 << bits
		for i, addr := 0, first; i < count && prefix.Contains(addr); i, addr = i+1, addr.Next() {
			if addr.Is4() && bits >= 2 && (i == 0 || i == count-1) {
				continue
			}
			hosts = append(hosts, addr.String())
		}
	}
	return hosts, nil
}
