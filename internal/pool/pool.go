// Package pool implements the thread-safe multi-source entropy pool: parallel
// collection with timeouts, per-source health accounting, an append-only
// shared buffer, and the conditioning gateway on output.
//
// Three independent locks guard the pool's state so that health readers
// never block collectors and vice versa: rowMu guards the per-source state
// rows, bufMu guards the shared byte buffer, and chainMu guards the SHA-256
// chaining state and counters. Keeping them separate avoids a lock-order
// problem between a collector appending bytes and a reader draining them.
package pool

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"entropid/internal/conditioning"
	"entropid/internal/metrics"
	"entropid/internal/minentropy"
	"entropid/internal/source"
)

// SourceState is the per-source runtime row owned by the pool. It is updated
// exclusively by collection workers under that source's row exclusion.
type SourceState struct {
	Source         source.EntropySource
	TotalBytes     uint64
	LastCollectAt  time.Time
	LastShannon    float64
	LastMinEntropy float64
	Healthy        bool
	Failures       uint64
	Weight         float64

	mu sync.Mutex
}

// PerSourceHealth is a snapshot row for the health report.
type PerSourceHealth struct {
	Name        string
	Healthy     bool
	Bytes       uint64
	Shannon     float64
	MinEntropy  float64
	LastTime    time.Time
	Failures    uint64
}

// HealthReport is a point-in-time snapshot obtainable without blocking
// collection.
type HealthReport struct {
	HealthyCount int
	Total        int
	RawBytes     uint64
	OutputBytes  uint64
	BufferSize   int
	PerSource    []PerSourceHealth
}

// Pool owns the ordered source list, the shared append-only buffer, and the
// conditioning chaining state.
type Pool struct {
	rowMu   sync.RWMutex
	rows    []*SourceState

	bufMu  sync.Mutex
	buffer []byte

	chainMu sync.Mutex
	chain   [32]byte
	counter uint64

	outputBytes uint64
}

// New initializes the chaining state to SHA-256(seed) if seed is non-empty,
// otherwise to SHA-256 of 32 bytes of OS randomness.
func New(seed []byte) *Pool {
	p := &Pool{}
	if len(seed) > 0 {
		p.chain = sha256.Sum256(seed)
	} else {
		var buf [32]byte
		_, _ = rand.Read(buf[:])
		p.chain = sha256.Sum256(buf[:])
	}
	return p
}

// Auto builds a pool and registers every available source from reg.
func Auto(reg *source.Registry) *Pool {
	p := New(nil)
	for _, s := range reg.Refresh() {
		p.AddSource(s)
	}
	return p
}

// AddSource registers a source with the pool, initializing its row.
func (p *Pool) AddSource(s source.EntropySource) {
	p.rowMu.Lock()
	defer p.rowMu.Unlock()
	p.rows = append(p.rows, &SourceState{Source: s, Weight: 1.0})
}

// CollectAllParallel spawns one worker per registered source, bounded by
// timeout. When the deadline elapses no more results are awaited by the
// caller, but in-flight workers are not cancelled -- they keep running to
// completion and still append their bytes to the buffer when they finish.
// This mirrors the "don't drop work in progress" semantics called out as an
// intentional (if surprising) behavior: a rewrite that wants hard
// cancellation must do so explicitly.
func (p *Pool) CollectAllParallel(ctx context.Context, timeout time.Duration) {
	p.collectFiltered(ctx, timeout, nil)
}

// CollectEnabled is CollectAllParallel filtered by exact source name.
func (p *Pool) CollectEnabled(ctx context.Context, timeout time.Duration, names []string) {
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	p.collectFiltered(ctx, timeout, allowed)
}

func (p *Pool) collectFiltered(ctx context.Context, timeout time.Duration, allowed map[string]bool) {
	p.rowMu.RLock()
	rows := make([]*SourceState, len(p.rows))
	copy(rows, p.rows)
	p.rowMu.RUnlock()

	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, _ := errgroup.WithContext(context.Background())
	done := make(chan struct{})

	for _, row := range rows {
		row := row
		if allowed != nil && !allowed[row.Source.Info().Name] {
			continue
		}
		g.Go(func() error {
			p.collectOne(row)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-deadlineCtx.Done():
		// Workers continue running in the background; we simply stop
		// waiting for them here, matching the scope-bounded semantics of
		// the original collection loop.
	}
}

func (p *Pool) collectOne(row *SourceState) {
	defer func() {
		if r := recover(); r != nil {
			row.mu.Lock()
			row.Failures++
			row.Healthy = false
			row.mu.Unlock()
		}
	}()

	b, err := row.Source.Collect(1000)
	shannon := minentropy.QuickShannon(b)
	minH := minentropy.Quick(b)

	row.mu.Lock()
	row.LastCollectAt = time.Now()
	row.LastShannon = shannon
	row.LastMinEntropy = minH
	if err != nil || len(b) == 0 {
		row.Failures++
	}
	row.Healthy = shannon > 1.0
	row.TotalBytes += uint64(len(b))
	row.mu.Unlock()

	if len(b) > 0 {
		p.appendBuffer(b)
	}
}

// appendBuffer adds incoming bytes to the shared buffer by simple append;
// independent streams interleave nondeterministically based on OS
// scheduling, and concurrent sources share one buffer rather than being kept
// separate.
func (p *Pool) appendBuffer(b []byte) {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	p.buffer = append(p.buffer, b...)
}

func (p *Pool) drainBuffer(n int) []byte {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	if n > len(p.buffer) {
		n = len(p.buffer)
	}
	out := make([]byte, n)
	copy(out, p.buffer[:n])
	p.buffer = p.buffer[n:]
	return out
}

func (p *Pool) bufferLen() int {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	return len(p.buffer)
}

// GetSourceRawBytes collects from a single named source until n raw bytes
// are available, blocking on repeated collection attempts if necessary.
func (p *Pool) GetSourceRawBytes(ctx context.Context, name string, n int) []byte {
	for p.bufferLen() < n {
		p.CollectEnabled(ctx, 2*time.Second, []string{name})
		if ctx.Err() != nil {
			break
		}
	}
	return p.drainBuffer(n)
}

// GetSourceBytes returns n conditioned bytes, running further collection
// rounds on the single named source only. The bytes are drained from the
// shared buffer, so they can include bytes other sources left there.
func (p *Pool) GetSourceBytes(ctx context.Context, name string, n int, mode conditioning.Mode) []byte {
	raw := p.rawNeededFor(ctx, n, mode, []string{name})
	return p.condition(raw, n, mode)
}

// GetBytes drains the shared buffer across all sources, triggering further
// parallel collection until enough raw material is available to satisfy the
// requested output size under mode, then applies the conditioning gateway.
// Per the pool output invariant, this returns exactly n bytes when at least
// one source is available; it blocks on continued collection rather than
// returning short.
func (p *Pool) GetBytes(ctx context.Context, n int, mode conditioning.Mode) []byte {
	raw := p.rawNeededFor(ctx, n, mode, nil)
	return p.condition(raw, n, mode)
}

func (p *Pool) rawNeededFor(ctx context.Context, n int, mode conditioning.Mode, names []string) []byte {
	needed := n
	switch mode {
	case conditioning.VonNeumann:
		needed = n * 6
	case conditioning.Sha256:
		// Each block digests a 256-byte chunk and yields 32 output bytes.
		blocks := (n + conditioning.Sha256DigestSize - 1) / conditioning.Sha256DigestSize
		needed = blocks * conditioning.Sha256BlockSize()
		if needed < conditioning.Sha256BlockSize() {
			needed = conditioning.Sha256BlockSize()
		}
	}

	for p.bufferLen() < needed {
		before := p.bufferLen()
		if names != nil {
			p.CollectEnabled(ctx, 2*time.Second, names)
		} else {
			p.CollectAllParallel(ctx, 2*time.Second)
		}
		if ctx.Err() != nil {
			break
		}
		if p.bufferLen() == before && !p.hasAvailableSource() {
			break
		}
	}
	return p.drainBuffer(needed)
}

func (p *Pool) hasAvailableSource() bool {
	p.rowMu.RLock()
	defer p.rowMu.RUnlock()
	return len(p.rows) > 0
}

// condition applies mode to raw. For Sha256 mode the pool's own chain/
// counter fields are the live state threaded through the digesting loop --
// each block produced is SHA256(chain || chunk || counter) and replaces
// chain, so two pools seeded differently (or the same pool called twice)
// never produce the same conditioned output for the same raw bytes. Raw and
// VonNeumann are stateless transforms of raw and leave chain/counter
// untouched, matching the spec's chaining-state invariant, which is scoped
// to "per SHA-256 block produced."
func (p *Pool) condition(raw []byte, n int, mode conditioning.Mode) []byte {
	start := time.Now()
	defer func() { metrics.GetMetrics().RecordConditioning(time.Since(start)) }()

	if mode != conditioning.Sha256 {
		out := conditioning.Condition(raw, n, mode)
		p.chainMu.Lock()
		p.outputBytes += uint64(len(out))
		p.chainMu.Unlock()
		return out
	}

	p.chainMu.Lock()
	defer p.chainMu.Unlock()

	out, newChain, newCounter := conditioning.Sha256ConditionWithState(p.chain, p.counter, raw, n)
	p.chain = newChain
	p.counter = newCounter
	p.outputBytes += uint64(len(out))
	return out
}

// Health returns a snapshot of pool and per-source state, obtainable without
// blocking collection.
func (p *Pool) Health() HealthReport {
	p.rowMu.RLock()
	rows := make([]*SourceState, len(p.rows))
	copy(rows, p.rows)
	p.rowMu.RUnlock()

	report := HealthReport{Total: len(rows), BufferSize: p.bufferLen(), OutputBytes: p.outputBytes}
	for _, row := range rows {
		row.mu.Lock()
		h := PerSourceHealth{
			Name:       row.Source.Info().Name,
			Healthy:    row.Healthy,
			Bytes:      row.TotalBytes,
			Shannon:    row.LastShannon,
			MinEntropy: row.LastMinEntropy,
			LastTime:   row.LastCollectAt,
			Failures:   row.Failures,
		}
		row.mu.Unlock()
		report.RawBytes += h.Bytes
		if h.Healthy {
			report.HealthyCount++
		}
		report.PerSource = append(report.PerSource, h)
	}
	metrics.GetMetrics().SetHealth(report.HealthyCount, report.Total-report.HealthyCount)
	return report
}
