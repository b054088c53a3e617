package directory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/lashd/internal/electrum"
)

type scriptedSource struct {
	mu    sync.Mutex
	lists *Lists
	err   error
	loads int
}

func (s *scriptedSource) Load(context.Context) (*Lists, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	l := *s.lists
	return &l, nil
}

func (s *scriptedSource) set(l *Lists, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists, s.err = l, err
}

func (s *scriptedSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

var defaults = Lists{
	Relays:  []string{"wss://default.example"},
	Servers: []string{"ssl://default.example:50002"},
}

func TestDirectory_StaticSource(t *testing.T) {
	d := New(Static{
		Relays:  []string{"wss://a.example", "wss://b.example"},
		Servers: []string{"ssl://one.example:50002", "tcp://two.example:50001"},
	}, time.Minute, defaults)

	assert.Equal(t, []string{"wss://a.example", "wss://b.example"}, d.Relays())
	assert.Equal(t, []electrum.Endpoint{
		{Host: "one.example", Port: 50002, TLS: true},
		{Host: "two.example", Port: 50001, TLS: false},
	}, d.Servers())
}

func TestDirectory_CachesUntilRefresh(t *testing.T) {
	src := &scriptedSource{lists: &Lists{Relays: []string{"wss://a.example"}, Servers: []string{"ssl://s.example:50002"}}}
	d := New(src, time.Hour, defaults)

	d.Relays()
	d.Servers()
	d.Relays()
	assert.Equal(t, 1, src.count(), "one load fills both lists")

	src.set(&Lists{Relays: []string{"wss://b.example"}}, nil)
	assert.Equal(t, []string{"wss://a.example"}, d.Relays())

	d.Refresh()
	assert.Equal(t, []string{"wss://b.example"}, d.Relays())
	assert.Equal(t, 2, src.count())
}

func TestDirectory_ExpiresAfterInterval(t *testing.T) {
	src := &scriptedSource{lists: &Lists{Relays: []string{"wss://a.example"}}}
	d := New(src, 20*time.Millisecond, defaults)

	assert.Equal(t, []string{"wss://a.example"}, d.Relays())
	src.set(&Lists{Relays: []string{"wss://b.example"}}, nil)

	assert.Eventually(t, func() bool {
		r := d.Relays()
		return len(r) == 1 && r[0] == "wss://b.example"
	}, time.Second, 10*time.Millisecond)
}

func TestDirectory_DefaultsBeforeFirstGoodLoad(t *testing.T) {
	src := &scriptedSource{err: errors.New("unreachable")}
	d := New(src, time.Hour, defaults)

	assert.Equal(t, defaults.Relays, d.Relays())
	assert.Equal(t, []electrum.Endpoint{{Host: "default.example", Port: 50002, TLS: true}}, d.Servers())
}

func TestDirectory_KeepsLastGoodOnFailure(t *testing.T) {
	src := &scriptedSource{lists: &Lists{Relays: []string{"wss://a.example"}, Servers: []string{"ssl://s.example:50002"}}}
	d := New(src, time.Hour, defaults)
	require.Equal(t, []string{"wss://a.example"}, d.Relays())

	src.set(nil, errors.New("boom"))
	d.Refresh()
	assert.Equal(t, []string{"wss://a.example"}, d.Relays())
	assert.Equal(t, []string{"ssl://s.example:50002"}, d.ServerList())

	// An empty list is treated like a failed load.
	src.set(&Lists{}, nil)
	d.Refresh()
	assert.Equal(t, []string{"wss://a.example"}, d.Relays())
}

func TestDirectory_SkipsInvalidServers(t *testing.T) {
	d := New(Static{Servers: []string{"ssl://ok.example:50002", "nonsense", "http://x:1"}}, time.Minute, defaults)
	assert.Equal(t, []electrum.Endpoint{{Host: "ok.example", Port: 50002, TLS: true}}, d.Servers())
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
relays:
  - wss://relay.one
  - wss://relay.two
electrum_servers:
  - ssl://e.one:50002
`), 0o600))

	d := New(File{Path: path}, time.Hour, defaults)
	assert.Equal(t, []string{"wss://relay.one", "wss://relay.two"}, d.Relays())
	assert.Equal(t, []string{"ssl://e.one:50002"}, d.ServerList())

	require.NoError(t, os.WriteFile(path, []byte("relays: [wss://relay.three]\n"), 0o600))
	d.Refresh()
	assert.Equal(t, []string{"wss://relay.three"}, d.Relays())
	assert.Equal(t, []string{"ssl://e.one:50002"}, d.ServerList(), "missing list keeps last good")
}

func TestFileSource_Errors(t *testing.T) {
	_, err := File{Path: filepath.Join(t.TempDir(), "missing.yaml")}.Load(context.Background())
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("relays: {not: a list"), 0o600))
	_, err = File{Path: path}.Load(context.Background())
	assert.Error(t, err)
}
