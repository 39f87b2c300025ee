package ffmpeg

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// Input is one element of a concatenation, in output order.
type Input struct {
	Path string
	// Duration in seconds; required when FadeOut is set.
	Duration float64
	FadeIn   float64
	FadeOut  float64
}

// Encode selects codecs and geometry for re-encoded output.
type Encode struct {
	VideoCodec   string
	AudioCodec   string
	Preset       string
	CRF          int
	AudioBitrate string
	Width        int
	Height       int
	FPS          int
}

// ConcatSpec describes one filter-graph concatenation.
type ConcatSpec struct {
	Inputs []Input
	Output string
	Encode Encode
}

func preamble() []string {
	return []string{"-hide_banner", "-nostdin", "-loglevel", "error", "-nostats", "-y"}
}

// BuildConcat returns ffmpeg arguments that decode every input once,
// optionally fade each one, and concatenate video and audio in order.
func BuildConcat(spec ConcatSpec) []string {
	args := preamble()
	for _, in := range spec.Inputs {
		args = append(args, "-i", in.Path)
	}
	args = append(args,
		"-filter_complex", FilterGraph(spec.Inputs, spec.Encode),
		"-map", "[outv]",
		"-map", "[outa]",
	)
	args = appendVideoCodec(args, spec.Encode)
	args = appendAudioCodec(args, spec.Encode)
	args = appendContainerOpts(args, spec.Output)
	return append(args, spec.Output)
}

// FilterGraph renders the -filter_complex graph for inputs.
func FilterGraph(inputs []Input, enc Encode) string {
	var b strings.Builder
	for i, in := range inputs {
		chain := []string{"setpts=PTS-STARTPTS"}
		chain = append(chain, geometryFilters(enc)...)
		if in.FadeIn > 0 {
			chain = append(chain, fmt.Sprintf("fade=t=in:st=0:d=%s", formatSeconds(in.FadeIn)))
		}
		if in.FadeOut > 0 {
			start := math.Max(in.Duration-in.FadeOut, 0)
			chain = append(chain, fmt.Sprintf("fade=t=out:st=%s:d=%s", formatSeconds(start), formatSeconds(in.FadeOut)))
		}
		fmt.Fprintf(&b, "[%d:v:0]%s[v%d];", i, strings.Join(chain, ","), i)
		fmt.Fprintf(&b, "[%d:a:0]asetpts=PTS-STARTPTS[a%d];", i, i)
	}
	for i := range inputs {
		fmt.Fprintf(&b, "[v%d][a%d]", i, i)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=1:a=1[outv][outa]", len(inputs))
	return b.String()
}

func geometryFilters(enc Encode) []string {
	var filters []string
	if enc.Width > 0 && enc.Height > 0 {
		w, h := strconv.Itoa(enc.Width), strconv.Itoa(enc.Height)
		filters = append(filters,
			"scale="+w+":"+h+":force_original_aspect_ratio=decrease",
			"pad="+w+":"+h+":(ow-iw)/2:(oh-ih)/2",
			"setsar=1",
		)
	}
	if enc.FPS > 0 {
		filters = append(filters, "fps="+strconv.Itoa(enc.FPS))
	}
	return filters
}

// BuildDemuxerConcat returns arguments that stream-copy the files listed in
// listPath (concat demuxer format) into output without re-encoding.
func BuildDemuxerConcat(listPath, output string) []string {
	args := preamble()
	args = append(args,
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-map", "0:v:0",
		"-map", "0:a:0",
		"-c", "copy",
	)
	args = appendContainerOpts(args, output)
	return append(args, output)
}

// BuildCompress returns arguments that re-encode input into output.
func BuildCompress(input, output string, enc Encode) []string {
	args := preamble()
	args = append(args,
		"-i", input,
		"-map", "0:v:0",
		"-map", "0:a?",
	)
	args = appendVideoCodec(args, enc)
	args = appendAudioCodec(args, enc)
	args = appendContainerOpts(args, output)
	return append(args, output)
}

func appendVideoCodec(args []string, enc Encode) []string {
	codec := strings.TrimSpace(enc.VideoCodec)
	if codec == "" {
		codec = "libx264"
	}
	args = append(args, "-c:v", codec)
	if enc.Preset != "" {
		args = append(args, "-preset", enc.Preset)
	}
	args = append(args, "-crf", strconv.Itoa(enc.CRF), "-pix_fmt", "yuv420p")
	if codec == "libx265" {
		args = append(args, "-x265-params", "log-level=error")
	}
	return args
}

func appendAudioCodec(args []string, enc Encode) []string {
	codec := strings.TrimSpace(enc.AudioCodec)
	if codec == "" {
		codec = "aac"
	}
	args = append(args, "-c:a", codec)
	if enc.AudioBitrate != "" && codec != "copy" {
		args = append(args, "-b:a", enc.AudioBitrate)
	}
	return args
}

func appendContainerOpts(args []string, output string) []string {
	switch strings.ToLower(filepath.Ext(output)) {
	case ".mp4", ".mov", ".m4v":
		args = append(args, "-movflags", "+faststart")
	}
	return args
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}
