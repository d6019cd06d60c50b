package audiocapture

import "sync"

// NullDevice is an in-memory Device for tests and headless runs. Frames
// queued with Feed are handed to the engine on the next poll.
type NullDevice struct {
	mu      sync.Mutex
	format  Format
	pending []int16
	started bool
}

// NewNullDevice creates a NullDevice reporting the given source format.
func NewNullDevice(sampleRate, channels int) *NullDevice {
	return &NullDevice{format: Format{SampleRate: sampleRate, Channels: channels}}
}

// Feed queues interleaved samples for delivery on the next Read.
func (d *NullDevice) Feed(samples []int16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, samples...)
}

func (d *NullDevice) Open() (Format, error) { return d.format, nil }

func (d *NullDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = true
	return nil
}

func (d *NullDevice) Read() ([]int16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started || len(d.pending) == 0 {
		return nil, nil
	}
	samples := d.pending
	d.pending = nil
	return samples, nil
}

func (d *NullDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	return nil
}

func (d *NullDevice) Close() error { return nil }
