package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/deploything/agent/pkg/log"
)

// Proxy forwards HTTP requests to the local service chosen by its route table
type Proxy struct {
	table    *RouteTable
	upstream string
	logger   zerolog.Logger
}

// New creates a proxy over table. Services are reached on 127.0.0.1.
func New(table *RouteTable) *Proxy {
	return &Proxy{
		table:    table,
		upstream: "127.0.0.1",
		logger:   log.WithComponent("proxy"),
	}
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	svc, ok := p.table.Route(r.Host, r.URL.Path)
	if !ok {
		p.logger.Debug().Str("host", r.Host).Str("path", r.URL.Path).Msg("No route")
		http.Error(w, "Service not found", http.StatusNotFound)
		return
	}

	target := &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(p.upstream, strconv.Itoa(svc.Port)),
	}

	rp := httputil.NewSingleHostReverseProxy(target)
	director := rp.Director
	rp.Director = func(req *http.Request) {
		director(req)
		// Keep the original Host for virtual hosting upstream
		req.Host = r.Host
		req.Header.Set("X-Forwarded-Host", r.Host)
		req.Header.Set("X-Forwarded-Proto", "http")
	}
	rp.ErrorHandler = func(w http.ResponseWriter, req *http.Request, err error) {
		p.logger.Warn().Err(err).Str("service", svc.Name).Str("upstream", target.Host).Msg("Upstream request failed")
		http.Error(w, "Bad gateway", http.StatusBadGateway)
	}

	p.logger.Debug().Str("service", svc.Name).Str("method", r.Method).Str("path", r.URL.Path).Msg("Proxying request")
	rp.ServeHTTP(w, r)
}

// Serve runs the proxy on addr until ctx is cancelled
func (p *Proxy) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           p,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	p.logger.Info().Str("addr", ln.Addr().String()).Int("routes", p.table.Len()).Msg("Reverse proxy listening")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
