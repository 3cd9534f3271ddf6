package boundary

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// MemConsole is an in-memory Console, for tests and for running the
// kernel with no real terminal attached. Output accumulates in Out;
// input is queued by tests via Feed.
type MemConsole struct {
	mu       sync.Mutex
	Out      bytes.Buffer
	in       []byte
	termColor int
	row, col int
}

// Feed appends s to the console's input queue, for a test to simulate
// keystrokes.
func (c *MemConsole) Feed(s []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.in = append(c.in, s...)
}

func (c *MemConsole) Putbytes(s []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Out.Write(s)
}

func (c *MemConsole) SetTermColor(color int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.termColor = color
	return true
}

func (c *MemConsole) SetCursor(row, col int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.row, c.col = row, col
	return true
}

func (c *MemConsole) GetCursor() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.row, c.col
}

func (c *MemConsole) ReadChar() (byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.in) == 0 {
		return 0, false
	}
	b := c.in[0]
	c.in = c.in[1:]
	return b, true
}

func (c *MemConsole) ReadLine(buf []byte) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	nl := bytes.IndexByte(c.in, '\n')
	if nl < 0 {
		return 0, false
	}
	n := copy(buf, c.in[:nl+1])
	c.in = c.in[nl+1:]
	return n, true
}

// MemImageTable is an in-memory ImageTable backed by a name->bytes map,
// for tests and for embedding a small fixed set of user binaries
// directly in the kernel image.
type MemImageTable struct {
	images map[string][]byte
}

// NewMemImageTable returns a table pre-populated from images.
func NewMemImageTable(images map[string][]byte) *MemImageTable {
	m := make(map[string][]byte, len(images))
	for k, v := range images {
		m[k] = v
	}
	return &MemImageTable{images: m}
}

func (t *MemImageTable) Lookup(name string) ([]byte, bool) {
	b, ok := t.images[name]
	return b, ok
}

func (t *MemImageTable) Names() []string {
	names := make([]string, 0, len(t.images))
	for k := range t.images {
		names = append(names, k)
	}
	return names
}

func (t *MemImageTable) Getbytes(name string, offset, size int) ([]byte, bool) {
	b, ok := t.images[name]
	if !ok || offset < 0 || size < 0 || offset+size > len(b) {
		return nil, false
	}
	return b[offset : offset+size], true
}

// MemTimerDriver is a software timer driver: it calls tick once every
// period until ctx is canceled, for running the kernel without a real
// PIT/APIC.
type MemTimerDriver struct {
	Period time.Duration
}

func (d *MemTimerDriver) Start(ctx context.Context, tick func()) {
	period := d.Period
	if period <= 0 {
		period = time.Millisecond
	}
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			tick()
		}
	}
}
