// Package speedtest measures the host's network throughput and triggers when
// it drops below a threshold. It needs no user credential.
package speedtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	st "github.com/showwin/speedtest-go/speedtest"

	"github.com/Jocelyn-JE/AREA-51/internal/service"
	logx "github.com/Jocelyn-JE/AREA-51/pkg/logx"
)

// measurement is one completed run. Runs are expensive, so one result is
// shared by every rule evaluated within cacheFor of it.
type measurement struct {
	downloadMbps float64
	uploadMbps   float64
	latency      time.Duration
	at           time.Time
}

const cacheFor = 5 * time.Minute

type Provider struct {
	service.Base
	log logx.Logger

	mu   sync.Mutex
	last *measurement
}

func New(log logx.Logger) *Provider {
	p := &Provider{log: log.With(logx.String("service", "speedtest"))}
	p.Base = service.NewBase("Speedtest", "",
		[]service.Action{{
			ActionDefinition: service.ActionDefinition{
				Name:        "speed_below",
				Description: "Fires when measured throughput drops below the threshold.",
				Parameters: []service.Parameter{
					{Name: "threshold_mbps", Type: service.ParamNumber, Required: true},
					{Name: "metric", Type: service.ParamSelect, Options: []string{"download", "upload"},
						Description: "Which direction to compare; download by default."},
				},
			},
			Run: p.speedBelow,
		}}, nil)
	return p
}

func (p *Provider) speedBelow(ctx context.Context, params service.Params, ec service.Context) (service.Trigger, error) {
	threshold, ok := params.Float64("threshold_mbps")
	if !ok || threshold <= 0 {
		return service.NoFire(), fmt.Errorf("threshold_mbps must be a positive number")
	}
	metric, _ := params.String("metric")
	if metric == "" {
		metric = "download"
	}

	m, err := p.measure(ctx)
	if err != nil {
		// Measurement failures are environmental; retry next sweep.
		p.log.Warn("speedtest run failed", logx.Err(err))
		return service.NoFire(), nil
	}

	observed := m.downloadMbps
	if metric == "upload" {
		observed = m.uploadMbps
	}
	if observed >= threshold {
		return service.NoFire(), nil
	}
	return service.FireWith(map[string]any{
		"metric":        metric,
		"observed_mbps": observed,
		"threshold":     threshold,
		"download_mbps": m.downloadMbps,
		"upload_mbps":   m.uploadMbps,
		"latency_ms":    m.latency.Milliseconds(),
	}), nil
}

func (p *Provider) measure(ctx context.Context) (measurement, error) {
	p.mu.Lock()
	if p.last != nil && time.Since(p.last.at) < cacheFor {
		m := *p.last
		p.mu.Unlock()
		return m, nil
	}
	p.mu.Unlock()

	m, err := runOnce(ctx)
	if err != nil {
		return measurement{}, err
	}

	p.mu.Lock()
	p.last = &m
	p.mu.Unlock()
	return m, nil
}

func runOnce(ctx context.Context) (measurement, error) {
	// Fresh client per run; the library keeps package-level state otherwise.
	stc := st.New()

	servers, err := stc.FetchServerListContext(ctx)
	if err != nil {
		return measurement{}, fmt.Errorf("fetch server list: %w", err)
	}
	if a := servers.Available(); a != nil {
		servers = *a
	}
	if len(servers) == 0 {
		return measurement{}, fmt.Errorf("no servers available")
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Distance < servers[j].Distance })
	s := servers[0]

	if err := s.PingTestContext(ctx, nil); err != nil {
		return measurement{}, fmt.Errorf("ping test: %w", err)
	}
	if err := s.DownloadTestContext(ctx); err != nil {
		return measurement{}, fmt.Errorf("download test: %w", err)
	}
	if err := s.UploadTestContext(ctx); err != nil {
		return measurement{}, fmt.Errorf("upload test: %w", err)
	}
	defer func() {
		stc.Snapshots().Clean()
		stc.Reset()
	}()

	return measurement{
		downloadMbps: s.DLSpeed.Mbps(),
		uploadMbps:   s.ULSpeed.Mbps(),
		latency:      s.Latency,
		at:           time.Now(),
	}, nil
}
