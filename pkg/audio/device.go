package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// RawAudio is the assembled output of a capture device.
type RawAudio struct {
	Data     []byte
	MimeType string
}

// Device is the platform capture capability. A RecordingSession selects one
// concrete strategy at construction and never branches on platform again.
type Device interface {
	// Start begins capture. It returns once the device is running.
	Start(ctx context.Context) error

	// Pause suspends capture without discarding what was captured so far.
	Pause() error

	// Resume continues capture after a Pause.
	Resume() error

	// Stop ends capture and returns the assembled audio.
	Stop() (*RawAudio, error)
}

// BufferDevice is the streaming-buffer strategy: it reads timed data
// segments from a source stream and buffers them in memory until Stop.
type BufferDevice struct {
	source      io.Reader
	mimeType    string
	segmentSize int

	mu       sync.Mutex
	segments [][]byte
	paused   bool
	stopped  bool
	done     chan struct{}
}

// NewBufferDevice creates a BufferDevice reading from source. segmentSize
// bounds how much is read per tick; zero selects a 32 KiB default.
func NewBufferDevice(source io.Reader, mimeType string, segmentSize int) *BufferDevice {
	if segmentSize <= 0 {
		segmentSize = 32 * 1024
	}
	if mimeType == "" {
		mimeType = "audio/webm"
	}
	return &BufferDevice{
		source:      source,
		mimeType:    mimeType,
		segmentSize: segmentSize,
		done:        make(chan struct{}),
	}
}

// Start launches the segment reader.
func (d *BufferDevice) Start(ctx context.Context) error {
	go d.readLoop(ctx)
	return nil
}

func (d *BufferDevice) readLoop(ctx context.Context) {
	defer close(d.done)
	buf := make([]byte, d.segmentSize)
	for {
		if ctx.Err() != nil {
			return
		}

		d.mu.Lock()
		stopped, paused := d.stopped, d.paused
		d.mu.Unlock()
		if stopped {
			return
		}
		if paused {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		n, err := d.source.Read(buf)
		if n > 0 {
			segment := make([]byte, n)
			copy(segment, buf[:n])
			d.mu.Lock()
			// A pause that raced the read discards the segment.
			if !d.paused && !d.stopped {
				d.segments = append(d.segments, segment)
			}
			d.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// Pause suspends buffering. Source data arriving while paused is dropped.
func (d *BufferDevice) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = true
	return nil
}

// Resume continues buffering.
func (d *BufferDevice) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = false
	return nil
}

// Stop ends capture and concatenates the buffered segments.
func (d *BufferDevice) Stop() (*RawAudio, error) {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	select {
	case <-d.done:
	case <-time.After(time.Second):
		// Reader is blocked on the source; assemble what we have.
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var total int
	for _, s := range d.segments {
		total += len(s)
	}
	data := make([]byte, 0, total)
	for _, s := range d.segments {
		data = append(data, s...)
	}
	return &RawAudio{Data: data, MimeType: d.mimeType}, nil
}

// FileDevice is the single-file strategy: an external recorder process
// (ffmpeg) writes one file, and Stop reads it back.
type FileDevice struct {
	command    string
	args       []string
	outputPath string
	mimeType   string

	cmd *exec.Cmd
}

// NewFileDevice creates a FileDevice that runs the given recorder command.
// The command is expected to write its output to outputPath and exit cleanly
// on SIGINT.
func NewFileDevice(command string, args []string, outputPath, mimeType string) *FileDevice {
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	return &FileDevice{
		command:    command,
		args:       args,
		outputPath: outputPath,
		mimeType:   mimeType,
	}
}

// Start launches the recorder process.
func (d *FileDevice) Start(ctx context.Context) error {
	cmd := exec.Command(d.command, d.args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting recorder: %w", err)
	}
	d.cmd = cmd
	return nil
}

// Pause suspends the recorder process.
func (d *FileDevice) Pause() error {
	if d.cmd == nil || d.cmd.Process == nil {
		return fmt.Errorf("recorder not running")
	}
	return d.cmd.Process.Signal(syscall.SIGSTOP)
}

// Resume continues the recorder process.
func (d *FileDevice) Resume() error {
	if d.cmd == nil || d.cmd.Process == nil {
		return fmt.Errorf("recorder not running")
	}
	return d.cmd.Process.Signal(syscall.SIGCONT)
}

// Stop interrupts the recorder, waits for it to flush its file, and reads
// the result back.
func (d *FileDevice) Stop() (*RawAudio, error) {
	if d.cmd != nil && d.cmd.Process != nil {
		_ = d.cmd.Process.Signal(syscall.SIGINT)
		_ = d.cmd.Wait()
	}

	data, err := os.ReadFile(d.outputPath)
	if err != nil {
		return nil, fmt.Errorf("reading recording: %w", err)
	}
	return &RawAudio{Data: data, MimeType: d.mimeType}, nil
}
