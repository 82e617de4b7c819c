// Package probe discovers local capture devices and network cameras on the
// local subnet.
package probe

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"platestation/internal/config"
	"platestation/internal/logger"
	"platestation/internal/models"
	"platestation/internal/services/capture"
)

// DiscoveryError records why a single candidate could not be probed. These are
// swallowed: the candidate counts as unavailable and probing continues.
type DiscoveryError struct {
	Candidate string
	Err       error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Candidate, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// Discovery is the outcome of one pass.
type Discovery struct {
	Sources  []models.CameraSource
	Failures []*DiscoveryError
}

// Recorder receives one observation per probe. metrics.Metrics implements it.
type Recorder interface {
	ObserveProbe(kind models.SourceKind, available bool)
}

type noopRecorder struct{}

func (noopRecorder) ObserveProbe(models.SourceKind, bool) {}

// Probe runs discovery passes against a capture engine.
type Probe struct {
	opener   capture.Opener
	pinger   Pinger
	resolver Resolver
	recorder Recorder
	policy   config.DiscoveryPolicy
	logger   *logger.Logger
}

// Option customises a Probe.
type Option func(*Probe)

// WithPinger replaces the reachability check.
func WithPinger(p Pinger) Option { return func(pr *Probe) { pr.pinger = p } }

// WithResolver replaces the local address lookup.
func WithResolver(r Resolver) Option { return func(pr *Probe) { pr.resolver = r } }

// WithRecorder attaches a probe observer.
func WithRecorder(r Recorder) Option { return func(pr *Probe) { pr.recorder = r } }

// New creates a Probe using the system ping and hostname resolution by default.
func New(opener capture.Opener, policy config.DiscoveryPolicy, logger *logger.Logger, opts ...Option) *Probe {
	p := &Probe{
		opener:   opener,
		pinger:   CommandPinger{},
		resolver: HostnameResolver{},
		recorder: noopRecorder{},
		policy:   policy,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.policy.Workers <= 0 {
		p.policy.Workers = 1
	}
	return p
}

// Discover runs one full pass. Local devices come first in index order, then
// network cameras in address order. The error is only set when the whole pass
// failed; per-candidate problems are reported in Discovery.Failures.
func (p *Probe) Discover(ctx context.Context) (Discovery, error) {
	var (
		result Discovery
		mu     sync.Mutex
	)
	fail := func(candidate string, err error) {
		mu.Lock()
		result.Failures = append(result.Failures, &DiscoveryError{Candidate: candidate, Err: err})
		mu.Unlock()
	}

	for i := 0; i < p.policy.LocalDeviceCount; i++ {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("discovery cancelled: %w", err)
		}
		candidate := "device " + strconv.Itoa(i)
		ok, err := p.probeCandidate(candidate, func() (capture.Handle, error) { return p.opener.OpenDevice(i) })
		if err != nil {
			fail(candidate, err)
		}
		p.recorder.ObserveProbe(models.SourceLocal, ok)
		if ok {
			result.Sources = append(result.Sources, models.NewLocalSource(i))
		}
	}

	hosts := p.candidateHosts()
	found := make([]*models.CameraSource, len(hosts))

	g := new(errgroup.Group)
	g.SetLimit(p.policy.Workers)
	for i, host := range hosts {
		i, host := i, host
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !p.pinger.Ping(ctx, host, p.policy.PingTimeout) {
				p.recorder.ObserveProbe(models.SourceIP, false)
				return nil
			}
			for _, tmpl := range p.policy.URLTemplates {
				url := strings.ReplaceAll(tmpl, "{host}", host)
				ok, err := p.probeCandidate(url, func() (capture.Handle, error) { return p.opener.OpenURL(url) })
				if err != nil {
					fail(url, err)
				}
				if ok {
					source := models.NewIPSource(host, url)
					found[i] = &source
					break
				}
			}
			p.recorder.ObserveProbe(models.SourceIP, found[i] != nil)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, fmt.Errorf("discovery cancelled: %w", err)
	}

	var network []models.CameraSource
	for _, source := range found {
		if source != nil {
			network = append(network, *source)
		}
	}
	sortByAddress(network)
	result.Sources = append(result.Sources, network...)

	if len(result.Failures) > 0 {
		p.logger.Warning("Discovery: %d candidate(s) failed, first: %v", len(result.Failures), result.Failures[0])
	}
	p.logger.Info("Discovery finished: %d source(s)", len(result.Sources))
	return result, nil
}

// probeCandidate opens a handle, checks that it yields a non-empty frame and
// releases it right away. A panic inside the capture engine is turned into an error.
func (p *Probe) probeCandidate(candidate string, open func() (capture.Handle, error)) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	handle, err := open()
	if err != nil {
		return false, err
	}
	if handle == nil {
		return false, nil
	}
	defer handle.Close()

	if !handle.IsOpened() {
		return false, nil
	}
	frame, read := handle.Read()
	if !read || frame == nil {
		return false, nil
	}
	defer frame.Close()

	return !frame.Empty(), nil
}

// candidateHosts expands the policy suffixes against the local prefix.
func (p *Probe) candidateHosts() []string {
	prefix := p.policy.FallbackPrefix
	if resolved, err := LocalPrefix(p.resolver); err == nil {
		prefix = resolved
	} else if prefix == "" {
		prefix = config.DefaultPrefix
	}

	hosts := make([]string, 0, len(p.policy.HostSuffixes))
	seen := make(map[string]bool)
	for _, suffix := range p.policy.HostSuffixes {
		host := fmt.Sprintf("%s.%d", prefix, suffix)
		if seen[host] {
			continue
		}
		seen[host] = true
		hosts = append(hosts, host)
	}
	return hosts
}

func sortByAddress(sources []models.CameraSource) {
	sort.SliceStable(sources, func(i, j int) bool {
		a, errA := netip.ParseAddr(sources[i].Host)
		b, errB := netip.ParseAddr(sources[j].Host)
		if errA != nil || errB != nil {
			return sources[i].Host < sources[j].Host
		}
		return a.Less(b)
	})
}
