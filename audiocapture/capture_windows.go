//go:build windows

package audiocapture

import (
	"encoding/binary"
	"fmt"
	"math"
	"syscall"
	"unsafe"
)

// WASAPI COM GUIDs
var (
	clsidMMDeviceEnumerator = comGUID{0xBCDE0395, 0xE52F, 0x467C, [8]byte{0x8E, 0x3D, 0xC4, 0x57, 0x92, 0x91, 0x69, 0x2E}}
	iidIMMDeviceEnumerator  = comGUID{0xA95664D2, 0x9614, 0x4F35, [8]byte{0xA7, 0x46, 0xDE, 0x8D, 0xB6, 0x36, 0x17, 0xE6}}
	iidIAudioClient         = comGUID{0x1CB9AD4C, 0xDBFA, 0x4c32, [8]byte{0xB1, 0x78, 0xC2, 0xF5, 0x68, 0xA7, 0x03, 0xB2}}
	iidIAudioCaptureClient  = comGUID{0xC8ADBD64, 0xE71E, 0x48a0, [8]byte{0xA4, 0xDE, 0x18, 0x5C, 0x39, 0x5C, 0xD3, 0x17}}
)

// WASAPI constants
const (
	eRender  = 0
	eConsole = 0

	audclntStreamLoopback  = 0x00020000
	audclntShareModeShared = 0
	waveFormatIEEEFloat    = 0x0003
	waveFormatExtensible   = 0xFFFE
	clsctxAll              = 0x1 | 0x2 | 0x4 | 0x10

	audclntBufferFlagsSilent  = 0x2
	audclntEDeviceInvalidated = 0x88890004

	// COM vtable indices (IUnknown = 0,1,2; interface methods start at 3)
	mmdeGetDefaultAudioEndpoint = 4  // IMMDeviceEnumerator::GetDefaultAudioEndpoint
	mmDeviceActivate            = 3  // IMMDevice::Activate
	audioClientInitialize       = 3  // IAudioClient::Initialize
	audioClientGetMixFormat     = 8  // IAudioClient::GetMixFormat
	audioClientStart            = 10 // IAudioClient::Start
	audioClientStop             = 11 // IAudioClient::Stop
	audioClientGetService       = 14 // IAudioClient::GetService
	capClientGetBuffer          = 3  // IAudioCaptureClient::GetBuffer
	capClientReleaseBuffer      = 4  // IAudioCaptureClient::ReleaseBuffer
	capClientGetNextPacketSize  = 5  // IAudioCaptureClient::GetNextPacketSize
)

// waveFormatEx mirrors WAVEFORMATEX.
type waveFormatEx struct {
	FormatTag      uint16
	Channels       uint16
	SamplesPerSec  uint32
	AvgBytesPerSec uint32
	BlockAlign     uint16
	BitsPerSample  uint16
	CbSize         uint16
}

// wasapiDevice captures system output audio via WASAPI loopback on the
// default render endpoint.
type wasapiDevice struct {
	enumerator    uintptr
	device        uintptr
	audioClient   uintptr
	captureClient uintptr
	mixFormat     waveFormatEx
	isFloat       bool

	readThreadCom bool
}

// DefaultDevice returns the WASAPI loopback device.
func DefaultDevice() (Device, error) {
	return &wasapiDevice{}, nil
}

func (d *wasapiDevice) Open() (Format, error) {
	// S_FALSE means COM was already initialized on this thread, which is fine.
	hr, _, _ := procCoInitializeEx.Call(0, 0) // COINIT_MULTITHREADED
	if int32(hr) < 0 {
		return Format{}, fmt.Errorf("CoInitializeEx failed: 0x%08X", uint32(hr))
	}

	var enumerator uintptr
	hr, _, _ = syscall.SyscallN(
		procCoCreateInstance.Addr(),
		uintptr(unsafe.Pointer(&clsidMMDeviceEnumerator)),
		0, // pUnkOuter
		uintptr(clsctxAll),
		uintptr(unsafe.Pointer(&iidIMMDeviceEnumerator)),
		uintptr(unsafe.Pointer(&enumerator)),
	)
	if int32(hr) < 0 {
		return Format{}, fmt.Errorf("create device enumerator: 0x%08X", uint32(hr))
	}
	d.enumerator = enumerator

	// Default render endpoint: loopback records what the speakers play.
	var device uintptr
	if _, err := comCall(enumerator, mmdeGetDefaultAudioEndpoint,
		uintptr(eRender), uintptr(eConsole), uintptr(unsafe.Pointer(&device))); err != nil {
		d.Close()
		return Format{}, fmt.Errorf("get default audio endpoint: %w", err)
	}
	d.device = device

	var audioClient uintptr
	if _, err := comCall(device, mmDeviceActivate,
		uintptr(unsafe.Pointer(&iidIAudioClient)),
		uintptr(clsctxAll),
		0,
		uintptr(unsafe.Pointer(&audioClient)),
	); err != nil {
		d.Close()
		return Format{}, fmt.Errorf("activate audio client: %w", err)
	}
	d.audioClient = audioClient

	var mixFormatPtr uintptr
	if _, err := comCall(audioClient, audioClientGetMixFormat, uintptr(unsafe.Pointer(&mixFormatPtr))); err != nil {
		d.Close()
		return Format{}, fmt.Errorf("get mix format: %w", err)
	}
	// Copy by value so we own the struct after CoTaskMemFree.
	d.mixFormat = *(*waveFormatEx)(unsafe.Pointer(mixFormatPtr))
	d.isFloat = d.mixFormat.FormatTag == waveFormatIEEEFloat ||
		(d.mixFormat.FormatTag == waveFormatExtensible && d.mixFormat.BitsPerSample == 32)

	// 1 second buffer, in 100-ns units.
	bufferDuration := int64(10000000)
	_, err := comCall(audioClient, audioClientInitialize,
		uintptr(audclntShareModeShared),
		uintptr(audclntStreamLoopback),
		uintptr(bufferDuration),
		0,            // periodicity
		mixFormatPtr, // must stay valid COM memory until Initialize returns
		0,            // AudioSessionGuid
	)
	procCoTaskMemFree.Call(mixFormatPtr)
	if err != nil {
		d.Close()
		return Format{}, fmt.Errorf("initialize loopback client: %w", err)
	}

	var captureClient uintptr
	if _, err := comCall(audioClient, audioClientGetService,
		uintptr(unsafe.Pointer(&iidIAudioCaptureClient)),
		uintptr(unsafe.Pointer(&captureClient)),
	); err != nil {
		d.Close()
		return Format{}, fmt.Errorf("get capture client: %w", err)
	}
	d.captureClient = captureClient

	return Format{
		SampleRate: int(d.mixFormat.SamplesPerSec),
		Channels:   int(d.mixFormat.Channels),
	}, nil
}

func (d *wasapiDevice) Start() error {
	if d.audioClient == 0 {
		return ErrNotInitialized
	}
	if _, err := comCall(d.audioClient, audioClientStart); err != nil {
		return fmt.Errorf("start audio client: %w", err)
	}
	return nil
}

// Read drains every packet currently queued by the OS and converts it to
// interleaved PCM-16. Packets flagged silent are skipped, matching the
// shared-mode loopback contract where silence arrives as flagged frames.
func (d *wasapiDevice) Read() ([]int16, error) {
	if d.captureClient == 0 {
		return nil, ErrNotInitialized
	}

	// The capture goroutine is pinned to one OS thread; COM must be
	// initialized on it before the first vtable call.
	if !d.readThreadCom {
		hr, _, _ := procCoInitializeEx.Call(0, 0)
		if int32(hr) < 0 {
			return nil, fmt.Errorf("CoInitializeEx on capture thread: 0x%08X", uint32(hr))
		}
		d.readThreadCom = true
	}

	var out []int16
	for {
		var packetLength uint32
		hr, _, _ := syscall.SyscallN(
			comVtblFn(d.captureClient, capClientGetNextPacketSize),
			d.captureClient,
			uintptr(unsafe.Pointer(&packetLength)),
		)
		if int32(hr) < 0 {
			if uint32(hr) == audclntEDeviceInvalidated {
				return out, fmt.Errorf("audio device invalidated")
			}
			return out, fmt.Errorf("GetNextPacketSize: 0x%08X", uint32(hr))
		}
		if packetLength == 0 {
			return out, nil
		}

		var dataPtr uintptr
		var numFrames uint32
		var flags uint32
		hr, _, _ = syscall.SyscallN(
			comVtblFn(d.captureClient, capClientGetBuffer),
			d.captureClient,
			uintptr(unsafe.Pointer(&dataPtr)),
			uintptr(unsafe.Pointer(&numFrames)),
			uintptr(unsafe.Pointer(&flags)),
			0, // devicePosition
			0, // qpcPosition
		)
		if int32(hr) < 0 {
			return out, fmt.Errorf("GetBuffer: 0x%08X", uint32(hr))
		}

		silent := flags&audclntBufferFlagsSilent != 0
		if numFrames > 0 && dataPtr != 0 && !silent {
			out = append(out, d.convertFrames(dataPtr, int(numFrames))...)
		}

		hr, _, _ = syscall.SyscallN(
			comVtblFn(d.captureClient, capClientReleaseBuffer),
			d.captureClient,
			uintptr(numFrames),
		)
		if int32(hr) < 0 {
			return out, fmt.Errorf("ReleaseBuffer: 0x%08X", uint32(hr))
		}
	}
}

// convertFrames turns a raw WASAPI buffer into interleaved int16 samples.
// Float sources are clamped at ±1.0 and scaled to ±32767; 16-bit sources
// pass through.
func (d *wasapiDevice) convertFrames(dataPtr uintptr, numFrames int) []int16 {
	channels := int(d.mixFormat.Channels)
	bytesPerSample := int(d.mixFormat.BitsPerSample) / 8
	totalBytes := numFrames * channels * bytesPerSample
	raw := unsafe.Slice((*byte)(unsafe.Pointer(dataPtr)), totalBytes)

	numSamples := numFrames * channels
	samples := make([]int16, 0, numSamples)

	switch {
	case d.isFloat && bytesPerSample == 4:
		for i := 0; i < numSamples; i++ {
			f := math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
			if f > 1.0 {
				f = 1.0
			} else if f < -1.0 {
				f = -1.0
			}
			samples = append(samples, int16(f*32767.0))
		}
	case bytesPerSample == 2:
		for i := 0; i < numSamples; i++ {
			samples = append(samples, int16(binary.LittleEndian.Uint16(raw[i*2:])))
		}
	}
	return samples
}

func (d *wasapiDevice) Stop() error {
	if d.audioClient == 0 {
		return nil
	}
	if _, err := comCall(d.audioClient, audioClientStop); err != nil {
		return fmt.Errorf("stop audio client: %w", err)
	}
	return nil
}

func (d *wasapiDevice) Close() error {
	// The next session's polling goroutine runs on a fresh OS thread and
	// must initialize COM again.
	d.readThreadCom = false
	if d.captureClient != 0 {
		comRelease(d.captureClient)
		d.captureClient = 0
	}
	if d.audioClient != 0 {
		comRelease(d.audioClient)
		d.audioClient = 0
	}
	if d.device != 0 {
		comRelease(d.device)
		d.device = 0
	}
	if d.enumerator != 0 {
		comRelease(d.enumerator)
		d.enumerator = 0
	}
	return nil
}
