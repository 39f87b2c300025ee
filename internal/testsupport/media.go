package testsupport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"clipmerge/internal/media/ffmpeg"
	"clipmerge/internal/media/ffprobe"
)

// FakeEngine stands in for ffmpeg. Output is the input contents joined with
// "|" so tests can assert order and membership of a merged artifact.
type FakeEngine struct {
	mu sync.Mutex
	// FailOn makes any invocation whose inputs include a path with this base
	// name fail with an EngineError.
	FailOn map[string]bool
	Specs  []ffmpeg.ConcatSpec
	Copies [][]string
	Calls  int
}

// NewFakeEngine returns an engine that fails for the given base names.
func NewFakeEngine(failOn ...string) *FakeEngine {
	e := &FakeEngine{FailOn: make(map[string]bool)}
	for _, name := range failOn {
		e.FailOn[name] = true
	}
	return e
}

// Concat implements the consolidation engine.
func (e *FakeEngine) Concat(_ context.Context, spec ffmpeg.ConcatSpec) error {
	e.mu.Lock()
	e.Calls++
	e.Specs = append(e.Specs, spec)
	e.mu.Unlock()

	paths := make([]string, 0, len(spec.Inputs))
	for _, in := range spec.Inputs {
		paths = append(paths, in.Path)
	}
	return e.write(paths, spec.Output)
}

// ConcatCopy implements the consolidation engine.
func (e *FakeEngine) ConcatCopy(_ context.Context, inputs []string, output string) error {
	e.mu.Lock()
	e.Calls++
	e.Copies = append(e.Copies, append([]string(nil), inputs...))
	e.mu.Unlock()
	return e.write(inputs, output)
}

// Compress implements the compression engine by copying input.
func (e *FakeEngine) Compress(_ context.Context, input, output string, _ ffmpeg.Encode) error {
	e.mu.Lock()
	e.Calls++
	e.mu.Unlock()
	if e.FailOn[filepath.Base(input)] {
		return &ffmpeg.EngineError{ExitCode: 1, Reason: ffmpeg.ReasonInvalidData, Stderr: "Invalid data found when processing input"}
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	return os.WriteFile(output, []byte("compressed:"+string(data)), 0o644)
}

// LastSpec returns the most recent concat spec.
func (e *FakeEngine) LastSpec() (ffmpeg.ConcatSpec, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Specs) == 0 {
		return ffmpeg.ConcatSpec{}, false
	}
	return e.Specs[len(e.Specs)-1], true
}

func (e *FakeEngine) write(inputs []string, output string) error {
	parts := make([]string, 0, len(inputs))
	for _, path := range inputs {
		if e.FailOn[filepath.Base(path)] {
			// Mimic a partially written output before the failure.
			_ = os.WriteFile(output, []byte("partial"), 0o644)
			return &ffmpeg.EngineError{ExitCode: 1, Reason: ffmpeg.ReasonInvalidData, Stderr: filepath.Base(path) + ": Invalid data found when processing input"}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("fake engine read %s: %w", path, err)
		}
		parts = append(parts, string(data))
	}
	return os.WriteFile(output, []byte(strings.Join(parts, "|")), 0o644)
}

// FakeProber reports every existing file as a 10 second clip with one video
// and one audio stream, unless overridden.
type FakeProber struct {
	mu        sync.Mutex
	Durations map[string]float64
	NoAudio   map[string]bool
	Fail      map[string]bool
	Probed    []string
}

// NewFakeProber returns an empty FakeProber.
func NewFakeProber() *FakeProber {
	return &FakeProber{
		Durations: make(map[string]float64),
		NoAudio:   make(map[string]bool),
		Fail:      make(map[string]bool),
	}
}

// Inspect implements ffprobe.Prober. Overrides are keyed by base name.
func (p *FakeProber) Inspect(_ context.Context, path string) (ffprobe.Result, error) {
	p.mu.Lock()
	p.Probed = append(p.Probed, path)
	p.mu.Unlock()

	name := filepath.Base(path)
	if p.Fail[name] {
		return ffprobe.Result{}, &ffprobe.ProbeError{Path: path, Detail: "Invalid data found when processing input", Err: errors.New("exit status 1")}
	}
	if _, err := os.Stat(path); err != nil {
		return ffprobe.Result{}, &ffprobe.ProbeError{Path: path, Err: err}
	}
	duration := 10.0
	if d, ok := p.Durations[name]; ok {
		duration = d
	}
	result := ffprobe.Result{
		Streams: []ffprobe.Stream{{Index: 0, CodecType: "video", Width: 1920, Height: 1080}},
		Format:  ffprobe.Format{Filename: path, Duration: fmt.Sprintf("%g", duration)},
	}
	if !p.NoAudio[name] {
		result.Streams = append(result.Streams, ffprobe.Stream{Index: 1, CodecType: "audio", Channels: 2})
	}
	return result, nil
}
