package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/deploything/agent/pkg/config"
	"github.com/deploything/agent/pkg/dispatch"
	"github.com/deploything/agent/pkg/log"
	"github.com/deploything/agent/pkg/metrics"
	"github.com/deploything/agent/pkg/orchestrator"
	"github.com/deploything/agent/pkg/proxy"
	"github.com/deploything/agent/pkg/reporter"
	"github.com/deploything/agent/pkg/runtime"
	"github.com/deploything/agent/pkg/transport"
)

// DialFunc opens the control plane connection
type DialFunc func(ctx context.Context, url string) (transport.Conn, error)

// Options configures an Agent
type Options struct {
	ControlPlaneURL  string
	SnapshotInterval time.Duration

	// MetricsAddr and ProxyAddr enable the optional HTTP servers when set
	MetricsAddr string
	ProxyAddr   string
	Routes      []config.RouteConfig
}

// OptionsFromConfig derives agent options from a loaded configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ControlPlaneURL:  transport.ControlPlaneURL(cfg.ControlPlane.Hostname, cfg.ControlPlane.Port),
		SnapshotInterval: cfg.SnapshotInterval,
		MetricsAddr:      cfg.Metrics.Addr,
		ProxyAddr:        cfg.Proxy.Addr,
		Routes:           cfg.Proxy.Routes,
	}
}

// Agent connects to the control plane and supervises the units serving it
type Agent struct {
	opts    Options
	runtime runtime.Client
	dial    DialFunc
	logger  zerolog.Logger
}

// New creates an agent driving rt. The agent takes ownership of rt and
// closes it when Run returns.
func New(rt runtime.Client, opts Options) *Agent {
	return &Agent{
		opts:    opts,
		runtime: rt,
		dial:    dialWebSocket,
		logger:  log.WithComponent("supervisor"),
	}
}

func dialWebSocket(ctx context.Context, url string) (transport.Conn, error) {
	return transport.Dial(ctx, url)
}

// Run connects once and runs every unit until one fails or ctx is
// cancelled. There is no reconnect: losing the connection ends the agent.
func (a *Agent) Run(ctx context.Context) error {
	defer func() {
		if err := a.runtime.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close runtime client")
		}
	}()
	metrics.UpdateComponent(metrics.ComponentRuntime, true, "")

	a.logger.Info().Str("url", a.opts.ControlPlaneURL).Msg("Connecting to control plane")
	conn, err := a.dial(ctx, a.opts.ControlPlaneURL)
	if err != nil {
		metrics.UpdateComponent(metrics.ComponentControlPlane, false, err.Error())
		return fmt.Errorf("failed to connect to control plane: %w", err)
	}
	defer conn.Close()

	metrics.UpdateComponent(metrics.ComponentControlPlane, true, "")
	a.logger.Info().Msg("Connected to control plane")

	return a.serve(ctx, conn)
}

func (a *Agent) serve(ctx context.Context, conn transport.Conn) error {
	g, gctx := errgroup.WithContext(ctx)

	outbox := transport.NewOutbox(transport.DefaultOutboxSize)
	dispatcher := dispatch.New(orchestrator.New(a.runtime))

	a.spawn(gctx, g, "dispatcher", dispatcher.Run)
	a.spawn(gctx, g, "inbound", transport.NewInboundPump(conn, dispatcher, outbox).Run)
	a.spawn(gctx, g, "outbound", transport.NewOutboundPump(conn, outbox).Run)
	a.spawn(gctx, g, "reporter", reporter.New(a.runtime, outbox, a.opts.SnapshotInterval).Run)

	if source, ok := a.runtime.(runtime.EventSource); ok {
		a.spawn(gctx, g, "events", func(ctx context.Context) error {
			return watchEvents(ctx, source, eventsRetryDelay)
		})
	}

	if a.opts.MetricsAddr != "" {
		addr := a.opts.MetricsAddr
		a.spawn(gctx, g, "metrics", func(ctx context.Context) error {
			return metrics.Serve(ctx, addr)
		})
	}

	if a.opts.ProxyAddr != "" {
		p := proxy.New(RouteTable(a.opts.Routes))
		addr := a.opts.ProxyAddr
		a.spawn(gctx, g, "proxy", func(ctx context.Context) error {
			return p.Serve(ctx, addr)
		})
	}

	err := g.Wait()
	if err != nil {
		a.logger.Error().Err(err).Msg("Agent stopped")
		return err
	}
	a.logger.Info().Msg("Agent stopped")
	return nil
}

// spawn runs one unit in the group. A unit returning nil leaves its
// siblings running; an error cancels the shared context.
func (a *Agent) spawn(ctx context.Context, g *errgroup.Group, name string, run func(context.Context) error) {
	g.Go(func() error {
		logger := a.logger.With().Str("unit", name).Logger()
		logger.Debug().Msg("Unit started")

		if err := run(ctx); err != nil {
			if name == "inbound" || name == "outbound" {
				metrics.UpdateComponent(metrics.ComponentControlPlane, false, err.Error())
			}
			logger.Error().Err(err).Msg("Unit failed, stopping agent")
			return fmt.Errorf("%s: %w", name, err)
		}

		if name == "inbound" && ctx.Err() == nil {
			metrics.UpdateComponent(metrics.ComponentControlPlane, false, "connection closed by control plane")
		}
		logger.Info().Msg("Unit exited")
		return nil
	})
}

// RouteTable builds the proxy route table from configured routes, keeping
// their order
func RouteTable(routes []config.RouteConfig) *proxy.RouteTable {
	table := proxy.NewRouteTable()
	for _, r := range routes {
		table.Add(
			proxy.RouteMatch{Hostname: r.Hostname, Path: r.Path},
			proxy.Service{Name: r.Service, Port: r.Port},
		)
	}
	return table
}
