package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateFragments(); err != nil {
		return err
	}
	if err := c.validateMerge(); err != nil {
		return err
	}
	if err := c.validateCompress(); err != nil {
		return err
	}
	if err := c.validateRuntime(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.Root) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("paths.root is required. Set CLIPMERGE_ROOT, pass --root, or edit %s (create with 'clipmerge config init')", defaultPath)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateFragments() error {
	if len(c.Fragments.Extensions) == 0 {
		return errors.New("fragments.extensions must include at least one extension")
	}
	for key, value := range map[string]string{
		"fragments.combined_dir":         c.Fragments.CombinedDir,
		"fragments.processed_dir":        c.Fragments.ProcessedDir,
		"fragments.scoped_artifact_name": c.Fragments.ScopedArtifactName,
	} {
		if strings.ContainsAny(value, `/\`) || value == "." || value == ".." {
			return fmt.Errorf("%s must be a plain directory or file name, got %q", key, value)
		}
		if strings.HasPrefix(value, ".") {
			return fmt.Errorf("%s must not be hidden, got %q", key, value)
		}
	}
	if c.Fragments.CombinedDir == c.Fragments.ProcessedDir {
		return errors.New("fragments.combined_dir and fragments.processed_dir must differ")
	}
	return nil
}

func (c *Config) validateMerge() error {
	if c.Merge.FadeEnabled && c.Merge.FadeSeconds <= 0 {
		return errors.New("merge.fade_seconds must be positive when merge.fade_enabled is true")
	}
	if c.Merge.CRF < 0 || c.Merge.CRF > 51 {
		return errors.New("merge.crf must be between 0 and 51")
	}
	if (c.Merge.Width > 0) != (c.Merge.Height > 0) {
		return errors.New("merge.width and merge.height must be set together")
	}
	if c.Merge.Width < 0 || c.Merge.Height < 0 || c.Merge.FPS < 0 {
		return errors.New("merge.width, merge.height, and merge.fps must be >= 0")
	}
	return nil
}

func (c *Config) validateCompress() error {
	if !c.Compress.Enabled {
		return nil
	}
	if c.Compress.IntermediateExt == c.Merge.OutputExt {
		return errors.New("compress.intermediate_ext must differ from merge.output_ext when compress.enabled is true")
	}
	if c.Compress.CRF < 0 || c.Compress.CRF > 51 {
		return errors.New("compress.crf must be between 0 and 51")
	}
	return nil
}

func (c *Config) validateRuntime() error {
	if c.Lock.TimeoutSeconds <= 0 {
		return errors.New("lock.timeout_seconds must be positive")
	}
	if c.Watch.SettleSeconds < 0 {
		return errors.New("watch.settle_seconds must be >= 0")
	}
	return nil
}
