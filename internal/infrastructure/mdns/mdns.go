// Package mdns advertises the lifxd HTTP API on the local network and finds
// other lifxd instances.
package mdns

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the DNS-SD service lifxd registers.
const ServiceType = "_lifxd._tcp"

// ErrNoAddress is returned for a browse result without an address.
var ErrNoAddress = errors.New("mdns: entry has no address")

// Config describes the advertisement.
type Config struct {
	// Instance is the service instance name. Default: hostname.
	Instance string

	// Port is the API port being advertised.
	Port int

	// Info is published as TXT records, e.g. "version=1.0.0".
	Info []string
}

// Advertiser owns a running mDNS responder.
type Advertiser struct {
	server   *mdns.Server
	stopOnce sync.Once
}

// Advertise starts answering mDNS queries for ServiceType.
//
// Parameters:
//   - cfg: Instance name, API port and TXT records
//
// Returns:
//   - *Advertiser: Call Shutdown to withdraw the advertisement
//   - error: If the service record or responder cannot be created
func Advertise(cfg Config) (*Advertiser, error) {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("mdns: invalid port %d", cfg.Port)
	}

	instance := cfg.Instance
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("mdns: resolving hostname: %w", err)
		}
		instance = host
	}

	service, err := mdns.NewMDNSService(instance, ServiceType, "", "", cfg.Port, nil, cfg.Info)
	if err != nil {
		return nil, fmt.Errorf("mdns: creating service record: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("mdns: starting responder: %w", err)
	}

	return &Advertiser{server: server}, nil
}

// Shutdown stops the responder. Safe to call more than once.
func (a *Advertiser) Shutdown() error {
	if a == nil || a.server == nil {
		return nil
	}
	var err error
	a.stopOnce.Do(func() {
		err = a.server.Shutdown()
	})
	return err
}

// Peer is another lifxd instance found on the network.
type Peer struct {
	Name    string   `json:"name"`
	Address string   `json:"address"`
	Port    int      `json:"port"`
	Info    []string `json:"info,omitempty"`
}

// Browse collects lifxd instances answering within timeout.
func Browse(timeout time.Duration) ([]Peer, error) {
	entries := make(chan *mdns.ServiceEntry, 8) //nolint:mnd
	var peers []Peer
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			if p, err := peerFromEntry(entry); err == nil {
				peers = append(peers, p)
			}
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	err := mdns.Query(params)
	close(entries)
	<-done

	if err != nil {
		return nil, fmt.Errorf("mdns: query: %w", err)
	}
	return peers, nil
}

func peerFromEntry(entry *mdns.ServiceEntry) (Peer, error) {
	var addr net.IP
	switch {
	case entry.AddrV4 != nil:
		addr = entry.AddrV4
	case entry.AddrV6 != nil:
		addr = entry.AddrV6
	default:
		return Peer{}, ErrNoAddress
	}
	return Peer{
		Name:    entry.Name,
		Address: addr.String(),
		Port:    entry.Port,
		Info:    entry.InfoFields,
	}, nil
}
