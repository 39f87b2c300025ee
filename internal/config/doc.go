// Package config loads, normalizes, and validates clipmerge configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the CLIPMERGE_ROOT environment
// fallback. The Config type centralizes every knob the consolidation pipeline
// needs: the highlights root, naming conventions for the combined and
// processed areas, ffmpeg encode settings, the optional compression pass,
// watch behaviour, and log routing.
//
// Always obtain settings through this package so downstream components
// receive sanitized paths and clear validation errors. The resulting value is
// threaded explicitly into every constructor; nothing reads configuration
// from ambient globals.
package config
