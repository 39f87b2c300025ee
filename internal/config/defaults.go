package config

const (
	defaultConfigPath         = "~/.config/clipmerge/config.toml"
	defaultStateDir           = "~/.local/share/clipmerge"
	defaultFragmentExt        = ".mp4"
	defaultCombinedDir        = "combined"
	defaultProcessedDir       = "processed"
	defaultScopedArtifactName = "combined"
	defaultFadeSeconds        = 0.5
	defaultVideoCodec         = "libx264"
	defaultAudioCodec         = "aac"
	defaultPreset             = "veryfast"
	defaultCRF                = 20
	defaultAudioBitrate       = "192k"
	defaultOutputExt          = ".mp4"
	defaultFFmpegBinary       = "ffmpeg"
	defaultFFprobeBinary      = "ffprobe"
	defaultIntermediateExt    = ".mkv"
	defaultCompressCodec      = "libx265"
	defaultCompressPreset     = "medium"
	defaultCompressCRF        = 26
	defaultSettleSeconds      = 5
	defaultLockTimeoutSeconds = 1
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogMaxSizeMB       = 20
	defaultLogMaxBackups      = 5
	defaultLogMaxAgeDays      = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		Fragments: Fragments{
			Extensions:         []string{defaultFragmentExt},
			CombinedDir:        defaultCombinedDir,
			ProcessedDir:       defaultProcessedDir,
			ScopedArtifactName: defaultScopedArtifactName,
		},
		Merge: Merge{
			FadeEnabled:   true,
			FadeSeconds:   defaultFadeSeconds,
			VideoCodec:    defaultVideoCodec,
			AudioCodec:    defaultAudioCodec,
			Preset:        defaultPreset,
			CRF:           defaultCRF,
			AudioBitrate:  defaultAudioBitrate,
			OutputExt:     defaultOutputExt,
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
		},
		Compress: Compress{
			IntermediateExt: defaultIntermediateExt,
			VideoCodec:      defaultCompressCodec,
			AudioCodec:      defaultAudioCodec,
			Preset:          defaultCompressPreset,
			CRF:             defaultCompressCRF,
			AudioBitrate:    defaultAudioBitrate,
		},
		Watch: Watch{
			SettleSeconds: defaultSettleSeconds,
		},
		Lock: Lock{
			TimeoutSeconds: defaultLockTimeoutSeconds,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
	}
}
