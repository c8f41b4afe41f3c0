// Package cluster wires the journal, runtime, ring, membership, and
// transport components into a single running Node: Submit/Register for
// callers, and the background gossip/probe loops that keep the ring in
// sync with cluster membership.
package cluster

import (
	"time"

	"github.com/dshills/durableflow/emit"
	"github.com/dshills/durableflow/membership"
	"github.com/dshills/durableflow/runtime"
)

// JournalBackend selects the Journal Store implementation a Node uses.
type JournalBackend int

const (
	// MemoryBackend uses journal.NewMemoryStore: fast, non-durable across
	// restarts, appropriate for tests and ephemeral deployments.
	MemoryBackend JournalBackend = iota
	// PersistentBackend uses journal.NewSQLiteStore at the configured path:
	// a per-node, on-disk journal.
	PersistentBackend
	// MySQLBackend uses journal.NewMySQLStore at the configured DSN: one
	// journal shared by every node in the cluster, for deployments that
	// would rather centralize the journal than shard it across each
	// node's local SQLite file.
	MySQLBackend
)

// config collects every recognized configuration option (spec §6) before
// a Node is constructed, following the same functional-options-over-a-
// config-struct shape used across this module's durable runtime.
type config struct {
	nodeID      string
	bindAddress string
	seeds       []string

	gossipTickPeriod    time.Duration
	directPingTimeout   time.Duration
	indirectPingTimeout time.Duration
	suspectTimeout      time.Duration
	virtualNodesPerMember int
	indirectFanout        int
	gossipFanout          int

	journalBackend JournalBackend
	journalPath    string
	journalDSN     string

	emitter     emit.Emitter
	metrics     runtime.Metrics
	retryPolicy runtime.AppendRetryPolicy
}

// Option configures a Node at construction time.
type Option func(*config)

func defaultConfig() config {
	return config{
		gossipTickPeriod:      time.Second,
		directPingTimeout:     500 * time.Millisecond,
		indirectPingTimeout:   time.Second,
		suspectTimeout:        5 * time.Second,
		virtualNodesPerMember: 150,
		indirectFanout:        3,
		gossipFanout:          3,
		journalBackend:        MemoryBackend,
		emitter:               emit.NewNullEmitter(),
		metrics:               runtime.NewNoopMetrics(),
		retryPolicy:           runtime.DefaultAppendRetryPolicy(),
	}
}

// WithNodeID sets this node's stable identifier. Required.
func WithNodeID(id string) Option {
	return func(c *config) { c.nodeID = id }
}

// WithBindAddress sets the address this node's transport listens on and
// advertises to peers. Required for HTTPTransport-backed nodes.
func WithBindAddress(addr string) Option {
	return func(c *config) { c.bindAddress = addr }
}

// WithSeeds sets the seed addresses used only on initial join.
func WithSeeds(seeds ...string) Option {
	return func(c *config) { c.seeds = seeds }
}

// WithGossipTickPeriod overrides the default 1s protocol tick period.
func WithGossipTickPeriod(d time.Duration) Option {
	return func(c *config) { c.gossipTickPeriod = d }
}

// WithDirectPingTimeout overrides T_dir (default 500ms).
func WithDirectPingTimeout(d time.Duration) Option {
	return func(c *config) { c.directPingTimeout = d }
}

// WithIndirectPingTimeout overrides T_ind (default 1s).
func WithIndirectPingTimeout(d time.Duration) Option {
	return func(c *config) { c.indirectPingTimeout = d }
}

// WithSuspectTimeout overrides T_sus (default 5s).
func WithSuspectTimeout(d time.Duration) Option {
	return func(c *config) { c.suspectTimeout = d }
}

// WithVirtualNodesPerMember overrides the hash ring's per-member virtual
// point count (default 150).
func WithVirtualNodesPerMember(n int) Option {
	return func(c *config) { c.virtualNodesPerMember = n }
}

// WithGossipUpdateFanout overrides the piggyback count on the messages this
// node sends while serving Ping, PingReq and Join (default 3). The failure
// detector's own Ping and PingReq probes always piggyback up to 3 updates,
// regardless of this option.
func WithGossipUpdateFanout(n int) Option {
	return func(c *config) { c.gossipFanout = n }
}

// WithIndirectFanout overrides k, the number of relays used for indirect
// probing (default 3).
func WithIndirectFanout(n int) Option {
	return func(c *config) { c.indirectFanout = n }
}

// WithMemoryJournal selects the in-memory Journal Store backend.
func WithMemoryJournal() Option {
	return func(c *config) { c.journalBackend = MemoryBackend }
}

// WithPersistentJournal selects the SQLite-backed Journal Store at path.
func WithPersistentJournal(path string) Option {
	return func(c *config) {
		c.journalBackend = PersistentBackend
		c.journalPath = path
	}
}

// WithMySQLJournal selects the MySQL/MariaDB-backed Journal Store at dsn,
// shared by every node pointed at the same dsn.
func WithMySQLJournal(dsn string) Option {
	return func(c *config) {
		c.journalBackend = MySQLBackend
		c.journalDSN = dsn
	}
}

// WithEmitter sets the lifecycle event emitter. Defaults to a null
// emitter.
func WithEmitter(e emit.Emitter) Option {
	return func(c *config) { c.emitter = e }
}

// WithMetrics sets the runtime.Metrics sink. Defaults to a no-op.
func WithMetrics(m runtime.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithAppendRetryPolicy overrides the journal append retry policy.
func WithAppendRetryPolicy(p runtime.AppendRetryPolicy) Option {
	return func(c *config) { c.retryPolicy = p }
}

// detectorConfig derives a membership.DetectorConfig from c.
func (c config) detectorConfig() membership.DetectorConfig {
	return membership.DetectorConfig{
		TickPeriod:        c.gossipTickPeriod,
		DirectPingTimeout: c.directPingTimeout,
		IndirectTimeout:   c.indirectPingTimeout,
		SuspectTimeout:    c.suspectTimeout,
		IndirectFanout:    c.indirectFanout,
	}
}
