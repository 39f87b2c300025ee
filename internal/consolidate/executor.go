package consolidate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"clipmerge/internal/config"
	"clipmerge/internal/logging"
	"clipmerge/internal/media/ffmpeg"
	"clipmerge/internal/media/ffprobe"
	"clipmerge/internal/planner"
	"clipmerge/internal/services"
)

const component = "consolidate"

// Engine is the subset of the ffmpeg client the executor drives.
type Engine interface {
	Concat(ctx context.Context, spec ffmpeg.ConcatSpec) error
	ConcatCopy(ctx context.Context, inputs []string, output string) error
}

// Method says how a batch was rendered.
type Method string

const (
	MethodReencode   Method = "reencode"
	MethodStreamCopy Method = "stream_copy"
)

// Result summarizes one executed batch.
type Result struct {
	Output   string
	Inputs   int
	Faded    int
	Duration float64
	Method   Method
	Elapsed  time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithEngine injects a custom engine (primarily for tests).
func WithEngine(engine Engine) Option {
	return func(e *Executor) {
		if engine != nil {
			e.engine = engine
		}
	}
}

// WithProber injects a custom prober (primarily for tests).
func WithProber(prober ffprobe.Prober) Option {
	return func(e *Executor) {
		if prober != nil {
			e.prober = prober
		}
	}
}

// Executor renders batches.
type Executor struct {
	cfg    *config.Config
	logger *slog.Logger
	engine Engine
	prober ffprobe.Prober
}

// New constructs an Executor using the configured ffmpeg and ffprobe binaries.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, component),
		engine: ffmpeg.New(cfg.Merge.FFmpegBinary),
		prober: ffprobe.CommandProber{Binary: cfg.Merge.FFprobeBinary},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type probedElement struct {
	element  planner.Element
	duration float64
	width    int
	height   int
}

// Execute renders batch into output. The engine runs to completion even if
// ctx is cancelled mid-invocation; cancellation is only observed between
// steps.
func (e *Executor) Execute(ctx context.Context, batch *planner.Batch, output string) (Result, error) {
	started := time.Now()
	if batch == nil || len(batch.Fragments) == 0 {
		return Result{}, services.Wrap(services.ErrValidation, component, "execute", "batch has no fragments", nil)
	}

	probed := make([]probedElement, 0, len(batch.Elements))
	for _, element := range batch.Elements {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		p, err := e.probe(ctx, element)
		if err != nil {
			return Result{}, err
		}
		probed = append(probed, p)
	}

	result := Result{Output: output, Inputs: len(probed)}
	for _, p := range probed {
		result.Duration += p.duration
	}

	engineCtx := context.WithoutCancel(ctx)
	if e.useStreamCopy() {
		result.Method = MethodStreamCopy
		paths := make([]string, 0, len(probed))
		for _, p := range probed {
			paths = append(paths, p.element.Path)
		}
		if err := e.engine.ConcatCopy(engineCtx, paths, output); err != nil {
			return Result{}, e.wrapEngine(batch, err)
		}
	} else {
		result.Method = MethodReencode
		spec := ffmpeg.ConcatSpec{Output: output, Encode: e.encode(probed)}
		for _, p := range probed {
			input := ffmpeg.Input{Path: p.element.Path, Duration: p.duration}
			if fade := e.fadeFor(p); fade > 0 {
				input.FadeIn = fade
				input.FadeOut = fade
				result.Faded++
			}
			spec.Inputs = append(spec.Inputs, input)
		}
		if err := e.engine.Concat(engineCtx, spec); err != nil {
			return Result{}, e.wrapEngine(batch, err)
		}
	}

	if err := e.verifyOutput(ctx, output); err != nil {
		return Result{}, err
	}
	result.Elapsed = time.Since(started)
	e.logger.Info("batch rendered",
		logging.String(logging.FieldCategory, batch.Category),
		logging.String(logging.FieldKey, batch.Key),
		logging.String("mode", string(batch.Mode)),
		logging.String("method", string(result.Method)),
		logging.Int("inputs", result.Inputs),
		logging.Int("faded", result.Faded),
		logging.Float64("duration_seconds", result.Duration),
		logging.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

func (e *Executor) probe(ctx context.Context, element planner.Element) (probedElement, error) {
	res, err := e.prober.Inspect(ctx, element.Path)
	if err != nil {
		return probedElement{}, services.Wrap(services.ErrExternalTool, component, "probe", element.Name, err)
	}
	duration := res.DurationSeconds()
	if math.IsNaN(duration) || duration <= 0 {
		return probedElement{}, services.Wrap(services.ErrValidation, component, "probe",
			fmt.Sprintf("%s has no usable duration", element.Name), nil)
	}
	video, hasVideo := res.FirstVideo()
	if !hasVideo {
		return probedElement{}, services.Wrap(services.ErrValidation, component, "probe",
			fmt.Sprintf("%s has no video stream", element.Name), nil)
	}
	if res.AudioStreamCount() == 0 {
		return probedElement{}, services.Wrap(services.ErrValidation, component, "probe",
			fmt.Sprintf("%s has no audio stream", element.Name), nil)
	}
	return probedElement{
		element:  element,
		duration: duration,
		width:    video.Width,
		height:   video.Height,
	}, nil
}

// fadeFor returns the fade length for one element, or 0 for none. The
// existing merged artifact is never faded; short clips get fades of at most
// half their duration so in and out do not overlap.
func (e *Executor) fadeFor(p probedElement) float64 {
	if !e.cfg.Merge.FadeEnabled || p.element.Existing {
		return 0
	}
	fade := e.cfg.Merge.FadeSeconds
	if half := p.duration / 2; fade > half {
		fade = half
	}
	return fade
}

func (e *Executor) useStreamCopy() bool {
	return e.cfg.Merge.StreamCopy && !e.cfg.Merge.FadeEnabled
}

// encode returns output settings. Without a configured size, mismatched
// inputs are normalized to the first element's geometry, which the concat
// filter requires.
func (e *Executor) encode(probed []probedElement) ffmpeg.Encode {
	m := e.cfg.Merge
	enc := ffmpeg.Encode{
		VideoCodec:   m.VideoCodec,
		AudioCodec:   m.AudioCodec,
		Preset:       m.Preset,
		CRF:          m.CRF,
		AudioBitrate: m.AudioBitrate,
		Width:        m.Width,
		Height:       m.Height,
		FPS:          m.FPS,
	}
	if enc.Width > 0 || len(probed) == 0 {
		return enc
	}
	first := probed[0]
	for _, p := range probed[1:] {
		if p.width != first.width || p.height != first.height {
			if first.width > 0 && first.height > 0 {
				enc.Width = first.width
				enc.Height = first.height
			}
			break
		}
	}
	return enc
}

func (e *Executor) verifyOutput(ctx context.Context, output string) error {
	info, err := os.Stat(output)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, component, "verify", "engine produced no output", err)
	}
	if info.Size() == 0 {
		return services.Wrap(services.ErrExternalTool, component, "verify", "engine produced an empty file", nil)
	}
	res, err := e.prober.Inspect(ctx, output)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, component, "verify", "probe merged output", err)
	}
	if d := res.DurationSeconds(); math.IsNaN(d) || d <= 0 {
		return services.Wrap(services.ErrExternalTool, component, "verify", "merged output has no duration", nil)
	}
	return nil
}

func (e *Executor) wrapEngine(batch *planner.Batch, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	message := batch.Label()
	if engineErr, ok := ffmpeg.AsEngineError(err); ok {
		message = fmt.Sprintf("%s (%s)", message, engineErr.Reason)
	}
	return services.Wrap(services.ErrExternalTool, component, "render", message, err)
}
