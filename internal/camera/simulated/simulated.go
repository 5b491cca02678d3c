// Package simulated provides an in-process camera: a device that produces
// synthetic streams, a sink that renders them, and a fixed encoding prober.
// The server uses it when no physical capture backend is attached; tests use
// it to script device and playback failures.
package simulated

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"idcapture/internal/camera"
)

// Device opens synthetic streams of a fixed native size.
type Device struct {
	mu       sync.Mutex
	width    int
	height   int
	failures []error
	streams  []*Stream
	profiles []camera.ConstraintProfile
	block    chan struct{}
}

// NewDevice returns a device with a width x height sensor. Streams are cropped
// to the requested aspect ratio.
func NewDevice(width, height int) *Device {
	return &Device{width: width, height: height}
}

// FailNext queues errors returned by the next Open calls, in order.
func (d *Device) FailNext(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, errs...)
}

// SetResolution changes the native size of streams opened afterwards.
func (d *Device) SetResolution(width, height int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.width, d.height = width, height
}

// BlockOpens makes Open wait until the returned function is called or ctx ends.
func (d *Device) BlockOpens() (unblock func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch := make(chan struct{})
	d.block = ch
	var once sync.Once
	return func() {
		once.Do(func() { close(ch) })
	}
}

func (d *Device) Open(ctx context.Context, profile camera.ConstraintProfile) (camera.Stream, error) {
	d.mu.Lock()
	d.profiles = append(d.profiles, profile)
	block := d.block
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		if err != nil {
			return nil, err
		}
	}
	width, height := cropToAspect(d.width, d.height, profile.AspectRatio)
	stream := &Stream{id: uuid.NewString(), width: width, height: height}
	d.streams = append(d.streams, stream)
	return stream, nil
}

// cropToAspect returns the largest centered region of a width x height sensor
// with the requested aspect ratio. Zero means unconstrained.
func cropToAspect(width, height int, aspect float64) (int, int) {
	if aspect <= 0 || width == 0 || height == 0 {
		return width, height
	}
	if float64(width)/float64(height) > aspect {
		return int(float64(height)*aspect + 0.5), height
	}
	return width, int(float64(width)/aspect + 0.5)
}

// Streams returns every stream opened so far.
func (d *Device) Streams() []*Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Stream(nil), d.streams...)
}

// Profiles returns the constraint profiles of every Open call, in order.
func (d *Device) Profiles() []camera.ConstraintProfile {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]camera.ConstraintProfile(nil), d.profiles...)
}

// Stream is a synthetic stream handle.
type Stream struct {
	id     string
	width  int
	height int
	stops  atomic.Int32
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) Stop() { s.stops.Add(1) }

// StopCount reports how many times Stop was called.
func (s *Stream) StopCount() int { return int(s.stops.Load()) }

// Size returns the native frame size.
func (s *Stream) Size() (int, int) { return s.width, s.height }

// Sink renders simulated streams. By default it starts playing on the first
// Play call.
type Sink struct {
	mu          sync.Mutex
	stream      *Stream
	props       camera.PlaybackProperties
	playing     bool
	plays       int
	playsNeeded int
	snapshotErr error
	attachErr   error
	detaches    int
}

func NewSink() *Sink {
	return &Sink{playsNeeded: 1}
}

// RequirePlays sets how many Play calls are needed before frames render.
// Zero means playback never starts.
func (s *Sink) RequirePlays(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playsNeeded = n
}

// FailSnapshot makes Snapshot return err until cleared with nil.
func (s *Sink) FailSnapshot(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshotErr = err
}

// FailAttach makes the next Attach return err.
func (s *Sink) FailAttach(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachErr = err
}

func (s *Sink) Attach(stream camera.Stream, props camera.PlaybackProperties) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stream = nil
	s.playing = false
	s.plays = 0
	if s.attachErr != nil {
		err := s.attachErr
		s.attachErr = nil
		return err
	}
	sim, ok := stream.(*Stream)
	if !ok {
		return camera.ErrPlaybackRejected
	}
	s.stream = sim
	s.props = props
	return nil
}

func (s *Sink) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stream = nil
	s.playing = false
	s.detaches++
}

func (s *Sink) Play(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return camera.ErrPlaybackRejected
	}
	s.plays++
	if s.playsNeeded > 0 && s.plays >= s.playsNeeded {
		s.playing = true
	}
	return nil
}

func (s *Sink) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Plays reports how many Play calls the current attachment received.
func (s *Sink) Plays() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plays
}

// Detaches reports how many times the sink was detached.
func (s *Sink) Detaches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detaches
}

// Properties returns the playback properties of the last attachment.
func (s *Sink) Properties() camera.PlaybackProperties {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.props
}

// Snapshot renders a gradient frame at the stream's native size.
func (s *Sink) Snapshot() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshotErr != nil {
		return nil, s.snapshotErr
	}
	if s.stream == nil || !s.playing {
		return nil, camera.ErrNoFrame
	}
	w, h := s.stream.Size()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img, nil
}

// Prober supports a fixed set of MIME types.
type Prober struct {
	supported map[string]bool
	probes    atomic.Int32
}

func NewProber(mimeTypes ...string) *Prober {
	p := &Prober{supported: make(map[string]bool, len(mimeTypes))}
	for _, m := range mimeTypes {
		p.supported[m] = true
	}
	return p
}

func (p *Prober) Supports(mimeType string) bool {
	p.probes.Add(1)
	return p.supported[mimeType]
}

// Probes reports how many Supports calls were made.
func (p *Prober) Probes() int { return int(p.probes.Load()) }

var (
	_ camera.Device         = (*Device)(nil)
	_ camera.Stream         = (*Stream)(nil)
	_ camera.Sink           = (*Sink)(nil)
	_ camera.EncodingProber = (*Prober)(nil)
)
