// Package sensor provides an accumulating buffer for application sensor
// readings, drained into each outbound health report.
package sensor

import "sync"

// Buffer maps sensor names to their most recent reading. Readings
// accumulate between health reports; Drain empties the buffer whether or
// not the subsequent send succeeds.
type Buffer struct {
	mu       sync.Mutex
	readings map[string]interface{}
}

// NewBuffer creates an empty sensor buffer.
func NewBuffer() *Buffer {
	return &Buffer{
		readings: make(map[string]interface{}),
	}
}

// Add records a sensor reading, replacing any previous value for the name.
func (b *Buffer) Add(name string, value interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readings[name] = value
}

// Len returns the number of buffered readings.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.readings)
}

// Drain returns the buffered readings and clears the buffer.
func (b *Buffer) Drain() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.readings
	b.readings = make(map[string]interface{})
	return out
}
