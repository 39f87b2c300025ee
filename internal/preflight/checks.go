package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"clipmerge/internal/config"
	"clipmerge/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the media tools for the given config. Both
// startup and the doctor command use this list.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Merge.FFmpegBinary,
			Description: "Required for concatenation and compression",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Merge.FFprobeBinary,
			Description: "Required for fragment durations and stream checks",
		},
	}
	return deps.CheckBinaries(ctx, requirements)
}

// CheckEncoders verifies that ffmpeg was built with the configured encoders.
// Stream-copy-only setups without fades never encode during merge, so only
// the compression codecs matter there.
func CheckEncoders(ctx context.Context, cfg *config.Config) Result {
	const name = "Encoders"

	var wanted []string
	if cfg.Merge.FadeEnabled || !cfg.Merge.StreamCopy {
		wanted = append(wanted, cfg.Merge.VideoCodec, cfg.Merge.AudioCodec)
	}
	if cfg.Compress.Enabled {
		wanted = append(wanted, cfg.Compress.VideoCodec, cfg.Compress.AudioCodec)
	}
	if len(wanted) == 0 {
		return Result{Name: name, Passed: true, Detail: "stream copy only"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	output, err := exec.CommandContext(checkCtx, cfg.Merge.FFmpegBinary, "-hide_banner", "-encoders").Output()
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("could not list encoders (%v)", err)}
	}
	available := parseEncoders(string(output))
	var missing []string
	seen := make(map[string]struct{})
	for _, codec := range wanted {
		codec = strings.TrimSpace(codec)
		if codec == "" || codec == "copy" {
			continue
		}
		if _, dup := seen[codec]; dup {
			continue
		}
		seen[codec] = struct{}{}
		if _, ok := available[codec]; !ok {
			missing = append(missing, codec)
		}
	}
	if len(missing) > 0 {
		return Result{Name: name, Detail: "missing " + strings.Join(missing, ", ")}
	}
	return Result{Name: name, Passed: true, Detail: strings.Join(keys(seen), ", ")}
}

// parseEncoders reads "ffmpeg -encoders" output. Encoder lines start with a
// six-character capability column followed by the encoder name.
func parseEncoders(output string) map[string]struct{} {
	encoders := make(map[string]struct{})
	inList := false
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "------") {
			inList = true
			continue
		}
		if !inList {
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) < 2 {
			continue
		}
		encoders[fields[1]] = struct{}{}
	}
	return encoders
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
