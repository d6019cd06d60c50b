// Package audiocapture captures the audio the machine is currently
// outputting (loopback, not a microphone) and accumulates PCM-16 samples
// for periodic flushing into speech-recognition-ready WAV data.
package audiocapture

import (
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/loopnote/loopnote/wav"
)

// ErrAlreadyCapturing is returned when Start is called while a capture is
// already running. Callers treat it as a soft no-op.
var ErrAlreadyCapturing = errors.New("already capturing audio")

// ErrNotInitialized is returned when Start is called before Initialize
// succeeded.
var ErrNotInitialized = errors.New("capture device not initialized")

// ErrUnsupported is returned on platforms without a loopback device.
var ErrUnsupported = errors.New("loopback capture not supported on this platform")

// pollInterval is how often the capture goroutine drains the device.
const pollInterval = 10 * time.Millisecond

// DeviceError reports a failure acquiring or driving the loopback
// endpoint. It is fatal to starting a session but never to the process.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string { return "audio device " + e.Op + ": " + e.Err.Error() }
func (e *DeviceError) Unwrap() error { return e.Err }

// Format describes the sample format a device delivers.
type Format struct {
	SampleRate int
	Channels   int
}

// Device is the narrow capability interface over an OS loopback source.
// Implementations deliver interleaved PCM-16 samples in the device's
// native rate and channel count; Read is only ever called from the
// engine's single polling goroutine.
type Device interface {
	// Open acquires the default output endpoint in loopback shared mode.
	Open() (Format, error)
	// Start begins the OS-side capture stream.
	Start() error
	// Read drains all frames currently available from the OS.
	Read() ([]int16, error)
	// Stop halts the OS-side capture stream.
	Stop() error
	// Close releases the endpoint.
	Close() error
}

// Engine owns a Device and a shared sample buffer. The polling goroutine
// is the sole producer; FlushToWAV is the consumer. The buffer mutex is
// held only for append and swap, never across conversion or encoding.
type Engine struct {
	dev Device

	mu      sync.Mutex
	buf     []int16
	format  Format
	lastErr string

	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates an Engine over the given device.
func New(dev Device) *Engine {
	return &Engine{dev: dev}
}

// Initialize acquires the loopback endpoint. A failure is recorded in
// LastError and returned; it is never fatal to the process.
func (e *Engine) Initialize() error {
	format, err := e.dev.Open()
	if err != nil {
		e.setLastError(err.Error())
		return &DeviceError{Op: "open", Err: err}
	}

	e.mu.Lock()
	e.format = format
	e.mu.Unlock()

	slog.Info("loopback device opened",
		"sampleRate", format.SampleRate,
		"channels", format.Channels,
	)
	return nil
}

// Start spawns the single polling goroutine. Starting while already
// capturing returns ErrAlreadyCapturing without touching the running
// session.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyCapturing
	}
	if e.format.SampleRate == 0 {
		e.mu.Unlock()
		e.setLastError(ErrNotInitialized.Error())
		return ErrNotInitialized
	}
	e.running = true
	e.done = make(chan struct{})
	e.mu.Unlock()

	if err := e.dev.Start(); err != nil {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		e.setLastError(err.Error())
		return &DeviceError{Op: "start", Err: err}
	}

	e.wg.Add(1)
	go e.pollLoop()
	return nil
}

// Stop signals the polling goroutine and joins it before returning, so no
// buffer write can race a later flush. Safe to call when not capturing.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.done)
	e.mu.Unlock()

	e.wg.Wait()
	if err := e.dev.Stop(); err != nil {
		slog.Error("stop loopback device", "error", err)
	}
}

// pollLoop drains the device on a fixed short interval and appends to the
// shared buffer. The goroutine is pinned to its OS thread because COM
// devices are initialized per thread.
func (e *Engine) pollLoop() {
	defer e.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
		}

		samples, err := e.dev.Read()
		if err != nil {
			slog.Warn("loopback read failed, stopping capture", "error", err)
			e.setLastError(err.Error())
			e.markDeadProducer()
			return
		}
		if len(samples) == 0 {
			continue
		}

		e.mu.Lock()
		e.buf = append(e.buf, samples...)
		e.mu.Unlock()
	}
}

// FlushToWAV atomically swaps the accumulated buffer for an empty one and,
// off the lock, down-mixes to mono, resamples to targetRate and encodes
// WAV. Returns nil when no samples were accumulated.
func (e *Engine) FlushToWAV(targetRate int) []byte {
	e.mu.Lock()
	samples := e.buf
	e.buf = nil
	format := e.format
	e.mu.Unlock()

	if len(samples) == 0 {
		return nil
	}

	if format.Channels == 2 {
		samples = downmixStereo(samples)
	}
	if format.SampleRate != targetRate {
		samples = resampleLinear(samples, format.SampleRate, targetRate)
	}
	if len(samples) == 0 {
		return nil
	}

	data, err := wav.Encode(samples, targetRate)
	if err != nil {
		slog.Error("encode flushed audio", "error", err)
		e.setLastError(err.Error())
		return nil
	}
	return data
}

// Format returns the device's native sample rate and channel count.
func (e *Engine) Format() (sampleRate, channels int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.format.SampleRate, e.format.Channels
}

// LastError returns the most recent capture error message, or "".
func (e *Engine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Close stops any running capture and releases the device.
func (e *Engine) Close() error {
	e.Stop()
	return e.dev.Close()
}

// markDeadProducer clears the running flag after a device read failure,
// so a later Start can bring up a fresh session instead of reporting
// ErrAlreadyCapturing for a producer that no longer exists. The device
// is stopped here unless Stop already won the race and will do it.
func (e *Engine) markDeadProducer() {
	e.mu.Lock()
	stopping := !e.running
	e.running = false
	e.mu.Unlock()

	if stopping {
		return
	}
	if err := e.dev.Stop(); err != nil {
		slog.Error("stop loopback device", "error", err)
	}
}

func (e *Engine) setLastError(msg string) {
	e.mu.Lock()
	e.lastErr = msg
	e.mu.Unlock()
}

// downmixStereo averages interleaved stereo pairs into mono. A trailing
// unpaired sample is dropped.
func downmixStereo(samples []int16) []int16 {
	mono := make([]int16, len(samples)/2)
	for i := range mono {
		left := int32(samples[i*2])
		right := int32(samples[i*2+1])
		mono[i] = int16((left + right) / 2)
	}
	return mono
}

// resampleLinear converts mono samples from srcRate to dstRate using
// linear interpolation between neighboring samples. The output length is
// floor(len(samples) / (srcRate/dstRate)); the boundary sample is taken
// verbatim.
func resampleLinear(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(srcRate) / float64(dstRate)
	n := int(float64(len(samples)) / ratio)
	out := make([]int16, n)

	for i := 0; i < n; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		if idx+1 < len(samples) {
			out[i] = int16(float64(samples[idx])*(1.0-frac) + float64(samples[idx+1])*frac)
		} else {
			out[i] = samples[idx]
		}
	}
	return out
}
