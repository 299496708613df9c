// Package discovery finds Laura-bot hardware nodes on the local network.
//
// Nodes advertise themselves over mDNS as _laurabot._tcp with TXT records:
//
//	nodeId=esp32-cam
//	classes=visual,input
//
// Each advertised class yields an "mqtt:<nodeId>" real candidate for the probe.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/nerrad567/laurabot-hal/internal/hal"
)

// DefaultService is the mDNS service type nodes advertise.
const DefaultService = "_laurabot._tcp"

// ErrBrowseFailed is returned when the mDNS resolver cannot be started.
var ErrBrowseFailed = errors.New("discovery: browse failed")

// Logger is the logging interface used by the browser.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// BrowseFunc starts an mDNS browse that delivers entries until ctx is done and
// then closes entries.
type BrowseFunc func(ctx context.Context, service, domain string, entries chan *zeroconf.ServiceEntry) error

// Browser collects node candidates over mDNS.
type Browser struct {
	service string
	domain  string
	timeout time.Duration
	browse  BrowseFunc
	logger  Logger
}

// NewBrowser creates a Browser using the system mDNS resolver.
func NewBrowser(service, domain string, timeout time.Duration) *Browser {
	if service == "" {
		service = DefaultService
	}
	if domain == "" {
		domain = "local."
	}
	return &Browser{
		service: service,
		domain:  domain,
		timeout: timeout,
		browse:  zeroconfBrowse,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger.
func (b *Browser) SetLogger(l Logger) {
	if l != nil {
		b.logger = l
	}
}

func zeroconfBrowse(ctx context.Context, service, domain string, entries chan *zeroconf.ServiceEntry) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return err
	}
	return resolver.Browse(ctx, service, domain, entries)
}

// Discover browses for the configured timeout and returns real candidates per
// class, de-duplicated and sorted by node id.
func (b *Browser) Discover(ctx context.Context) (map[hal.CapabilityClass][]hal.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := b.browse(ctx, b.service, b.domain, entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBrowseFailed, err)
	}

	seen := make(map[hal.CapabilityClass]map[string]bool)
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return collect(seen), nil
			}
			if entry == nil {
				continue
			}
			node, classes := ParseTXT(entry.Text)
			if node == "" {
				node = entry.Instance
			}
			b.logger.Debug("mDNS node found", "node", node, "classes", classes)
			for _, c := range classes {
				if seen[c] == nil {
					seen[c] = make(map[string]bool)
				}
				seen[c][node] = true
			}
		case <-ctx.Done():
			return collect(seen), nil
		}
	}
}

func collect(seen map[hal.CapabilityClass]map[string]bool) map[hal.CapabilityClass][]hal.Candidate {
	out := make(map[hal.CapabilityClass][]hal.Candidate, len(seen))
	for class, nodes := range seen {
		ids := make([]string, 0, len(nodes))
		for id := range nodes {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			out[class] = append(out[class], hal.Candidate{Kind: "mqtt", Address: id})
		}
	}
	return out
}

// ParseTXT extracts the node id and advertised classes from TXT records.
// Unknown classes are ignored.
func ParseTXT(txt []string) (node string, classes []hal.CapabilityClass) {
	for _, rec := range txt {
		key, value, ok := strings.Cut(rec, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(key) {
		case "nodeid":
			node = strings.TrimSpace(value)
		case "classes":
			for _, raw := range strings.Split(value, ",") {
				if c, err := hal.ParseClass(raw); err == nil {
					classes = append(classes, c)
				}
			}
		}
	}
	return node, classes
}
