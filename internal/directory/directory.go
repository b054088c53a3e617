// Package directory serves the current relay and Electrum server lists.
// Lists come from a Source and are cached for a refresh interval; when a
// refresh fails the last good list, then the configured defaults, are used.
package directory

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/Klingon-tech/lashd/internal/electrum"
	klog "github.com/Klingon-tech/lashd/internal/log"
)

const (
	keyRelays  = "relays"
	keyServers = "servers"

	loadTimeout = 10 * time.Second
)

// Lists is one snapshot of the directory.
type Lists struct {
	Relays  []string `yaml:"relays"`
	Servers []string `yaml:"electrum_servers"`
}

// Source produces the current lists.
type Source interface {
	Load(ctx context.Context) (*Lists, error)
}

// Static is a fixed Source.
type Static Lists

// Load implements Source.
func (s Static) Load(context.Context) (*Lists, error) {
	l := Lists(s)
	return &l, nil
}

// File re-reads a YAML file with "relays" and "electrum_servers" lists on
// every refresh.
type File struct {
	Path string
}

// Load implements Source.
func (f File) Load(context.Context) (*Lists, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read directory file: %w", err)
	}
	var l Lists
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse directory file %s: %w", f.Path, err)
	}
	return &l, nil
}

// Directory caches the lists of a Source.
type Directory struct {
	src      Source
	defaults Lists
	cache    *ttlcache.Cache[string, []string]
	logger   zerolog.Logger

	mu       sync.Mutex
	lastGood map[string][]string
}

// New creates a directory refreshing from src every refresh. defaults are
// used until src has produced a non-empty list.
func New(src Source, refresh time.Duration, defaults Lists) *Directory {
	d := &Directory{
		src:      src,
		defaults: defaults,
		logger:   klog.WithComponent("directory"),
		lastGood: make(map[string][]string),
	}
	d.cache = ttlcache.New[string, []string](
		ttlcache.WithTTL[string, []string](refresh),
		ttlcache.WithDisableTouchOnHit[string, []string](),
		ttlcache.WithLoader[string, []string](ttlcache.LoaderFunc[string, []string](d.load)),
	)
	return d
}

// Relays returns the current relay URLs.
func (d *Directory) Relays() []string {
	return d.get(keyRelays)
}

// ServerList returns the current Electrum servers as configured strings.
func (d *Directory) ServerList() []string {
	return d.get(keyServers)
}

// Servers returns the current Electrum endpoints in rank order. Entries that
// do not parse are skipped.
func (d *Directory) Servers() []electrum.Endpoint {
	var eps []electrum.Endpoint
	for _, s := range d.ServerList() {
		ep, err := electrum.ParseEndpoint(s)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Skipping invalid server")
			continue
		}
		eps = append(eps, ep)
	}
	return eps
}

// Refresh drops the cached lists so the next read reloads them.
func (d *Directory) Refresh() {
	d.cache.DeleteAll()
}

func (d *Directory) get(key string) []string {
	if item := d.cache.Get(key); item != nil {
		return item.Value()
	}
	return d.fallback(key)
}

// load is the cache loader: it fetches both lists and caches them.
func (d *Directory) load(c *ttlcache.Cache[string, []string], key string) *ttlcache.Item[string, []string] {
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	lists, err := d.src.Load(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Directory refresh failed, keeping previous lists")
		lists = &Lists{}
	}

	relays := d.remember(keyRelays, lists.Relays)
	servers := d.remember(keyServers, lists.Servers)
	ri := c.Set(keyRelays, relays, ttlcache.DefaultTTL)
	si := c.Set(keyServers, servers, ttlcache.DefaultTTL)

	d.logger.Debug().Int("relays", len(relays)).Int("servers", len(servers)).Msg("Directory refreshed")
	if key == keyRelays {
		return ri
	}
	return si
}

// remember stores a non-empty list as last good and returns the list to
// serve for key.
func (d *Directory) remember(key string, list []string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(list) > 0 {
		d.lastGood[key] = append([]string(nil), list...)
		return list
	}
	if last := d.lastGood[key]; len(last) > 0 {
		return last
	}
	if key == keyRelays {
		return d.defaults.Relays
	}
	return d.defaults.Servers
}

func (d *Directory) fallback(key string) []string {
	return d.remember(key, nil)
}
