// Package proxy implements the strangler-fig core: the router that decides a
// request's destination and the forwarder that bridges client and backend.
package proxy

import (
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/kinohub/strangler-proxy/internal/split"
)

// Service is one extracted backend the router can divert traffic to.
type Service struct {
	Name       string
	PathPrefix string
	Upstream   *url.URL
	HealthPath string

	// Splitting services carry a migration percentage; fully migrated
	// services always win their prefix.
	Splitting        bool
	MigrationPercent int

	RateLimit ServiceRateLimit
}

type ServiceRateLimit struct {
	Enabled bool
	RPS     float64
	Burst   float64
}

// MonolithName labels decisions that fall through to the legacy system.
const MonolithName = "monolith"

// Decision is computed exactly once per request and never revisited.
type Decision struct {
	Destination string
	Target      *url.URL
	// Draw is the split-policy value behind this decision, -1 when no draw
	// was made. SplitService names the service whose percentage the draw
	// was held against.
	Draw         int
	SplitService string
}

type Router struct {
	monolith *url.URL
	gradual  bool
	services []Service
	source   split.Source
	log      *slog.Logger
}

var ErrNoMonolith = &errString{s: "monolith url is required"}

type errString struct{ s string }

func (e *errString) Error() string { return e.s }

// New builds a router over an immutable service table. Services are matched
// longest prefix first so nested prefixes resolve deterministically.
func New(monolith *url.URL, gradual bool, services []Service, src split.Source, log *slog.Logger) (*Router, error) {
	if monolith == nil {
		return nil, ErrNoMonolith
	}
	sorted := make([]Service, len(services))
	copy(sorted, services)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].PathPrefix) > len(sorted[j].PathPrefix)
	})
	return &Router{
		monolith: monolith,
		gradual:  gradual,
		services: sorted,
		source:   src,
		log:      log,
	}, nil
}

// Determine maps one request onto its destination. It is a total function:
// anything not claimed by a service prefix stays on the monolith, which is
// the point of the strangler-fig facade.
func (r *Router) Determine(method, path string) Decision {
	// Health checks of extracted services bypass the split policy so a
	// service being warmed up stays observable at 0%.
	for i := range r.services {
		svc := &r.services[i]
		if svc.HealthPath != "" && path == svc.HealthPath {
			return Decision{Destination: svc.Name, Target: svc.Upstream, Draw: -1}
		}
	}

	for i := range r.services {
		svc := &r.services[i]
		if !strings.HasPrefix(path, svc.PathPrefix) {
			continue
		}
		if !svc.Splitting {
			return Decision{Destination: svc.Name, Target: svc.Upstream, Draw: -1}
		}
		if !r.gradual {
			return Decision{Destination: MonolithName, Target: r.monolith, Draw: -1}
		}

		draw := r.source.Next()
		dec := Decision{Destination: MonolithName, Target: r.monolith, Draw: draw, SplitService: svc.Name}
		if draw < svc.MigrationPercent {
			dec.Destination = svc.Name
			dec.Target = svc.Upstream
		}
		r.log.Info("split_draw",
			slog.String("service", svc.Name),
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("draw", draw),
			slog.Int("percent", svc.MigrationPercent),
			slog.String("destination", dec.Destination),
		)
		return dec
	}

	return Decision{Destination: MonolithName, Target: r.monolith, Draw: -1}
}

// ServiceByName returns the configured service entry, or nil.
func (r *Router) ServiceByName(name string) *Service {
	for i := range r.services {
		if r.services[i].Name == name {
			return &r.services[i]
		}
	}
	return nil
}
