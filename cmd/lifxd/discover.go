package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/mdns"
	"github.com/nerrad567/gray-logic-lifx/internal/light"
	"github.com/nerrad567/gray-logic-lifx/internal/service"
)

// defaultDiscoverDuration covers one tick plus the property poll replies.
const defaultDiscoverDuration = 6 * time.Second

type discoverOptions struct {
	duration time.Duration
	asJSON   bool
	peers    bool
	verbose  bool
}

func discoverCmd(configPath *string) *cobra.Command {
	var opts discoverOptions

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Broadcast for lights and print what answers",
		Long: `Discover binds a UDP socket, broadcasts for lights, waits for the
given duration while their state is polled, then prints one line per
light. With --peers it also lists other lifxd instances advertised
over mDNS.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return runDiscover(cmd.Context(), cfg, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", defaultDiscoverDuration, "how long to listen")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print JSON instead of a table")
	cmd.Flags().BoolVar(&opts.peers, "peers", false, "also browse for lifxd instances over mDNS")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log protocol traffic to stderr")
	return cmd
}

func runDiscover(ctx context.Context, cfg *config.Config, opts discoverOptions, out io.Writer) error {
	log := logging.New(config.LoggingConfig{Level: "warn", Format: "text", Output: "stderr"}, version)
	if opts.verbose {
		log.SetLevel("debug")
	}

	udp, legacy, err := openSockets(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer udp.Close() //nolint:errcheck // process is exiting
	svcOpts := service.Options{
		Transport:           udp,
		SourceID:            cfg.LIFX.SourceID,
		TickInterval:        cfg.GetTickInterval(),
		BroadcastAddr:       cfg.GetBroadcastIP(),
		CorrelationTimeout:  cfg.GetCorrelationTimeout(),
		CorrelationAttempts: cfg.LIFX.Attempts,
		Logger:              log,
	}
	if legacy != nil {
		defer legacy.Close() //nolint:errcheck // process is exiting
		svcOpts.LegacyTransport = legacy
	}

	svc, err := service.New(svcOpts)
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("starting service: %w", err)
	}

	select {
	case <-time.After(opts.duration):
	case <-ctx.Done():
	}
	svc.Stop()

	states := make([]light.State, 0)
	for _, l := range svc.Lights() {
		states = append(states, l.Snapshot())
	}
	slices.SortFunc(states, func(a, b light.State) int {
		return strings.Compare(light.FormatID(a.ID), light.FormatID(b.ID))
	})

	var peers []mdns.Peer
	if opts.peers {
		peers, err = mdns.Browse(opts.duration)
		if err != nil {
			return fmt.Errorf("browsing for peers: %w", err)
		}
	}

	if opts.asJSON {
		return writeDiscoveryJSON(out, states, peers)
	}
	return writeDiscoveryTable(out, states, peers)
}

// discoveredLight is one line of discover output.
type discoveredLight struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Address   string `json:"address"`
	Product   uint32 `json:"product_id"`
	On        bool   `json:"on"`
	Reachable bool   `json:"reachable"`
	Location  string `json:"location"`
	Group     string `json:"group"`
}

func toDiscovered(s light.State) discoveredLight {
	return discoveredLight{
		ID:        light.FormatID(s.ID),
		Label:     s.Label,
		Address:   s.Address.String(),
		Product:   s.ProductInfo.ProductID,
		On:        s.IsOn(),
		Reachable: s.Reachable,
		Location:  s.Location.Label,
		Group:     s.Group.Label,
	}
}

func writeDiscoveryJSON(out io.Writer, states []light.State, peers []mdns.Peer) error {
	lights := make([]discoveredLight, 0, len(states))
	for _, s := range states {
		lights = append(lights, toDiscovered(s))
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"lights": lights, "peers": peers})
}

func writeDiscoveryTable(out io.Writer, states []light.State, peers []mdns.Peer) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0) //nolint:mnd // column padding
	fmt.Fprintln(tw, "ID\tLABEL\tADDRESS\tPRODUCT\tPOWER\tLOCATION\tGROUP")
	for _, s := range states {
		d := toDiscovered(s)
		power := "off"
		if d.On {
			power = "on"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			d.ID, d.Label, d.Address, d.Product, power, d.Location, d.Group)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("writing table: %w", err)
	}
	fmt.Fprintf(out, "%d light(s) found\n", len(states))

	for _, p := range peers {
		fmt.Fprintf(out, "peer %s at %s:%d %s\n", p.Name, p.Address, p.Port, strings.Join(p.Info, " "))
	}
	return nil
}
