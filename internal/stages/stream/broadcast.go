// Package stream serves the live pipeline output over HTTP. Frames
// are muxed into a bounded broadcast buffer; clients follow it with
// per-client cursors, so a slow reader loses chunks instead of
// blocking the loop that feeds the buffer.
package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrBroadcastClosed is returned when the broadcast buffer is closed.
var ErrBroadcastClosed = errors.New("broadcast buffer closed")

// BroadcastConfig bounds the broadcast buffer.
type BroadcastConfig struct {
	// MaxBytes is the maximum total size of retained chunks.
	MaxBytes int64
	// MaxChunks is the maximum number of retained chunks.
	MaxChunks int
	// ChunkTTL is how long a chunk stays available to lagging clients.
	ChunkTTL time.Duration
	// ClientTimeout evicts clients that stopped reading.
	ClientTimeout time.Duration
	// CleanupInterval is how often expiry runs.
	CleanupInterval time.Duration
}

// DefaultBroadcastConfig returns sensible defaults for a live stream.
func DefaultBroadcastConfig() BroadcastConfig {
	return BroadcastConfig{
		MaxBytes:        8 * 1024 * 1024,
		MaxChunks:       512,
		ChunkTTL:        30 * time.Second,
		ClientTimeout:   30 * time.Second,
		CleanupInterval: 5 * time.Second,
	}
}

type chunk struct {
	seq   uint64
	data  []byte
	added time.Time
}

// Client is one HTTP consumer of a broadcast buffer. Its cursor marks
// the last chunk sequence it has read.
type Client struct {
	ID          uuid.UUID
	RemoteAddr  string
	ConnectedAt time.Time

	cursor    atomic.Uint64
	bytesRead atomic.Uint64

	lastReadMu sync.Mutex
	lastRead   time.Time

	notify chan struct{}
}

// BytesRead returns the total bytes delivered to this client.
func (c *Client) BytesRead() uint64 { return c.bytesRead.Load() }

// Cursor returns the last chunk sequence read by this client.
func (c *Client) Cursor() uint64 { return c.cursor.Load() }

func (c *Client) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Client) wait(ctx context.Context) error {
	select {
	case <-c.notify:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) touch() {
	c.lastReadMu.Lock()
	c.lastRead = time.Now()
	c.lastReadMu.Unlock()
}

func (c *Client) stale(timeout time.Duration) bool {
	c.lastReadMu.Lock()
	defer c.lastReadMu.Unlock()
	return time.Since(c.lastRead) > timeout
}

func (c *Client) lastReadTime() time.Time {
	c.lastReadMu.Lock()
	defer c.lastReadMu.Unlock()
	return c.lastRead
}

// Broadcast is a bounded multi-client chunk buffer. Writes never
// block; limits evict the oldest chunks first.
type Broadcast struct {
	cfg BroadcastConfig

	mu     sync.Mutex
	chunks []chunk
	size   int64
	seq    uint64
	closed bool

	clientsMu sync.RWMutex
	clients   map[uuid.UUID]*Client

	written atomic.Uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewBroadcast creates a broadcast buffer and starts its expiry loop.
func NewBroadcast(cfg BroadcastConfig) *Broadcast {
	b := &Broadcast{
		cfg:     cfg,
		clients: make(map[uuid.UUID]*Client),
		stopCh:  make(chan struct{}),
	}
	b.wg.Add(1)
	go b.cleanupLoop()
	return b
}

// Write implements io.Writer for the TS muxer. The data is copied:
// muxers reuse their output buffers between writes.
func (b *Broadcast) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, ErrBroadcastClosed
	}
	b.seq++
	b.chunks = append(b.chunks, chunk{
		seq:   b.seq,
		data:  append([]byte(nil), p...),
		added: time.Now(),
	})
	b.size += int64(len(p))
	b.evictLocked()
	b.mu.Unlock()

	b.written.Add(uint64(len(p)))

	b.clientsMu.RLock()
	for _, c := range b.clients {
		c.wake()
	}
	b.clientsMu.RUnlock()
	return len(p), nil
}

// evictLocked drops oldest chunks until both limits hold.
func (b *Broadcast) evictLocked() {
	for len(b.chunks) > b.cfg.MaxChunks || (b.size > b.cfg.MaxBytes && len(b.chunks) > 0) {
		b.size -= int64(len(b.chunks[0].data))
		b.chunks = b.chunks[1:]
	}
}

// Subscribe registers a new client positioned at the live edge: it
// only sees chunks written after this call.
func (b *Broadcast) Subscribe(remoteAddr string) (*Client, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBroadcastClosed
	}
	seq := b.seq
	b.mu.Unlock()

	c := &Client{
		ID:          uuid.New(),
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		lastRead:    time.Now(),
		notify:      make(chan struct{}, 1),
	}
	c.cursor.Store(seq)

	b.clientsMu.Lock()
	b.clients[c.ID] = c
	b.clientsMu.Unlock()
	return c, nil
}

// Unsubscribe removes a client.
func (b *Broadcast) Unsubscribe(id uuid.UUID) {
	b.clientsMu.Lock()
	delete(b.clients, id)
	b.clientsMu.Unlock()
}

// ClientCount returns the number of subscribed clients.
func (b *Broadcast) ClientCount() int {
	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()
	return len(b.clients)
}

// read returns all chunks past the client's cursor and advances it.
func (b *Broadcast) read(c *Client) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	cursor := c.cursor.Load()
	var out [][]byte
	for _, ch := range b.chunks {
		if ch.seq <= cursor {
			continue
		}
		out = append(out, ch.data)
		c.cursor.Store(ch.seq)
		c.bytesRead.Add(uint64(len(ch.data)))
	}
	if len(out) > 0 {
		c.touch()
	}
	return out
}

// Next returns the chunks the client has not yet seen, blocking until
// data arrives, ctx is done, or the buffer closes.
func (b *Broadcast) Next(ctx context.Context, c *Client) ([][]byte, error) {
	for {
		if out := b.read(c); len(out) > 0 {
			return out, nil
		}
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		b.mu.Lock()
		closed := b.closed
		b.mu.Unlock()
		if closed {
			return nil, ErrBroadcastClosed
		}
	}
}

func (b *Broadcast) cleanupLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.expireChunks()
			b.evictStaleClients()
		}
	}
}

func (b *Broadcast) expireChunks() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	for len(b.chunks) > 0 && now.Sub(b.chunks[0].added) > b.cfg.ChunkTTL {
		b.size -= int64(len(b.chunks[0].data))
		b.chunks = b.chunks[1:]
	}
}

func (b *Broadcast) evictStaleClients() {
	b.clientsMu.Lock()
	defer b.clientsMu.Unlock()

	for id, c := range b.clients {
		if c.stale(b.cfg.ClientTimeout) {
			delete(b.clients, id)
		}
	}
}

// Close shuts the buffer down and wakes all waiting clients.
func (b *Broadcast) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	close(b.stopCh)

	b.clientsMu.RLock()
	for _, c := range b.clients {
		c.wake()
	}
	b.clientsMu.RUnlock()

	b.wg.Wait()
}

// Stats returns a snapshot of the buffer and its clients.
func (b *Broadcast) Stats() BroadcastStats {
	b.mu.Lock()
	st := BroadcastStats{
		Chunks:        len(b.chunks),
		BufferedBytes: b.size,
		Sequence:      b.seq,
	}
	b.mu.Unlock()

	st.BytesWritten = b.written.Load()

	b.clientsMu.RLock()
	st.ClientCount = len(b.clients)
	for _, c := range b.clients {
		st.Clients = append(st.Clients, ClientStats{
			ID:          c.ID.String(),
			RemoteAddr:  c.RemoteAddr,
			BytesRead:   c.BytesRead(),
			Cursor:      c.Cursor(),
			ConnectedAt: c.ConnectedAt,
			LastRead:    c.lastReadTime(),
		})
	}
	b.clientsMu.RUnlock()
	return st
}

// BroadcastStats is a point-in-time view of a broadcast buffer.
type BroadcastStats struct {
	Chunks        int           `json:"chunks"`
	BufferedBytes int64         `json:"buffered_bytes"`
	BytesWritten  uint64        `json:"bytes_written"`
	Sequence      uint64        `json:"sequence"`
	ClientCount   int           `json:"client_count"`
	Clients       []ClientStats `json:"clients,omitempty"`
}

// ClientStats is a point-in-time view of one client.
type ClientStats struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remote_addr,omitempty"`
	BytesRead   uint64    `json:"bytes_read"`
	Cursor      uint64    `json:"cursor"`
	ConnectedAt time.Time `json:"connected_at"`
	LastRead    time.Time `json:"last_read"`
}
