package commit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"clipmerge/internal/catalog"
	"clipmerge/internal/fileutil"
	"clipmerge/internal/logging"
	"clipmerge/internal/media/ffmpeg"
	"clipmerge/internal/services"
)

// CompressResult describes one compressed artifact.
type CompressResult struct {
	Intermediate string
	Output       string
	Elapsed      time.Duration
	Err          error
}

// CompressPending re-encodes every intermediate artifact into the final
// output format. The intermediate is removed only after the final file has
// been renamed into place. Failures are reported per artifact and retried
// on the next pass.
func (m *Manager) CompressPending(ctx context.Context) ([]CompressResult, error) {
	if !m.cfg.Compress.Enabled {
		return nil, nil
	}
	categories, err := m.catalog.Categories()
	if err != nil {
		return nil, err
	}
	var results []CompressResult
	for _, category := range categories {
		for _, artifact := range m.intermediates(category) {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			results = append(results, m.compressOne(ctx, artifact))
		}
	}
	return results, nil
}

func (m *Manager) intermediates(category catalog.Category) []catalog.Artifact {
	combined := m.catalog.CombinedDir(category)
	found, err := m.catalog.Intermediates(combined)
	if err != nil {
		m.logger.Warn("intermediate scan failed", logging.String("dir", combined), logging.Error(err))
	}
	stem := m.catalog.ScopedArtifactStem()
	for _, dir := range m.artifactDirs(category)[1:] {
		artifact, ok, err := m.catalog.LookupArtifact(dir, stem)
		if err != nil || !ok || !artifact.Intermediate {
			continue
		}
		found = append(found, artifact)
	}
	return found
}

func (m *Manager) compressOne(ctx context.Context, artifact catalog.Artifact) CompressResult {
	started := time.Now()
	dir := filepath.Dir(artifact.Path)
	final := filepath.Join(dir, artifact.Stem+m.cfg.Merge.OutputExt)
	temp := filepath.Join(dir, catalog.TempName(artifact.Stem, m.cfg.Merge.OutputExt))
	result := CompressResult{Intermediate: artifact.Path, Output: final}
	logger := m.logger.With(logging.String("artifact", artifact.Path))

	c := m.cfg.Compress
	enc := ffmpeg.Encode{
		VideoCodec:   c.VideoCodec,
		AudioCodec:   c.AudioCodec,
		Preset:       c.Preset,
		CRF:          c.CRF,
		AudioBitrate: c.AudioBitrate,
	}
	fail := func(err error) CompressResult {
		m.Discard(temp)
		result.Err = err
		result.Elapsed = time.Since(started)
		logging.WarnWithContext(logger, "compression failed; intermediate kept", "compress_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "artifact stays in intermediate format until the next pass"),
		)
		return result
	}

	if err := m.compressor.Compress(context.WithoutCancel(ctx), artifact.Path, temp, enc); err != nil {
		return fail(services.Wrap(services.ErrExternalTool, component, "compress", artifact.Stem, err))
	}
	info, err := os.Stat(temp)
	if err != nil || info.Size() == 0 {
		return fail(services.Wrap(services.ErrExternalTool, component, "compress", "engine produced no output", err))
	}
	if err := fileutil.Rename(temp, final); err != nil {
		return fail(services.Wrap(services.ErrTransient, component, "compress", "promote compressed artifact", err))
	}
	if err := fileutil.SyncDir(dir); err != nil {
		logger.Warn("artifact directory sync failed", logging.Error(err))
	}
	if err := os.Remove(artifact.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		result.Err = fmt.Errorf("remove intermediate: %w", err)
		logger.Warn("compressed artifact promoted but intermediate could not be removed", logging.Error(err))
	}
	result.Elapsed = time.Since(started)
	logger.Info("artifact compressed",
		logging.String("output", final),
		logging.Duration("elapsed", result.Elapsed),
	)
	return result
}
