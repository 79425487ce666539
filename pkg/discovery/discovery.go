package discovery

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/grandcat/zeroconf"

	"vrx/station/pkg/logger"
)

const (
	// ServiceType is the mDNS service type a transmitter browses for
	ServiceType = "_vrx._tcp"
	// Domain is the local domain for mDNS
	Domain = "local."
)

// ServiceInfo describes a discovered ground station
type ServiceInfo struct {
	InstanceName string
	HostName     string
	Port         int
	IPs          []string
	Meta         map[string]string
}

// Advertiser broadcasts this station's video port over mDNS
type Advertiser struct {
	server *zeroconf.Server
}

// NewAdvertiser creates a new service advertiser
func NewAdvertiser() *Advertiser {
	return &Advertiser{}
}

// Start begins broadcasting the service. Meta typically carries the canvas
// geometry and supported codecs so a transmitter can pick a mode up front.
func (a *Advertiser) Start(instanceName string, port int, meta map[string]string) error {
	if instanceName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			instanceName = "vrx-station"
		} else {
			instanceName = fmt.Sprintf("vrx-%s", hostname)
		}
	}

	var txtRecords []string
	for k, v := range meta {
		txtRecords = append(txtRecords, fmt.Sprintf("%s=%s", k, v))
	}

	server, err := zeroconf.Register(
		instanceName,
		ServiceType,
		Domain,
		port,
		txtRecords,
		nil, // all interfaces
	)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	a.server = server
	logger.Sugar.Infof("[Discovery] advertising %s on port %d as %q", ServiceType, port, instanceName)
	return nil
}

// Stop stops broadcasting the service
func (a *Advertiser) Stop() {
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// Resolver browses for ground stations on the local network
type Resolver struct {
	resolver *zeroconf.Resolver
}

// NewResolver creates a new service resolver
func NewResolver() (*Resolver, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}
	return &Resolver{resolver: resolver}, nil
}

// Browse scans for stations until the context is canceled, streaming
// results on the returned channel.
func (r *Resolver) Browse(ctx context.Context) (<-chan *ServiceInfo, error) {
	entries := make(chan *zeroconf.ServiceEntry)
	results := make(chan *ServiceInfo, 10)

	if err := r.resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse services: %w", err)
	}

	go func() {
		defer close(results)

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}

				info := &ServiceInfo{
					InstanceName: entry.Instance,
					HostName:     entry.HostName,
					Port:         entry.Port,
					Meta:         make(map[string]string),
				}
				for _, ip := range entry.AddrIPv4 {
					info.IPs = append(info.IPs, ip.String())
				}
				for _, record := range entry.Text {
					parts := strings.SplitN(record, "=", 2)
					if len(parts) == 2 {
						info.Meta[parts[0]] = parts[1]
					}
				}

				if len(info.IPs) > 0 {
					logger.Sugar.Infof("[Discovery] found station: instance=%s ips=%v port=%d", info.InstanceName, info.IPs, info.Port)
					results <- info
				}
			}
		}
	}()

	return results, nil
}
