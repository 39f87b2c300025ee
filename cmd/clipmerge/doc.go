// Package main hosts the clipmerge CLI entrypoint and command graph.
//
// The root command consolidates the highlights root: with no argument every
// category is merged by date, and a single argument names a scope folder to
// merge as one artifact per category. With --watch (or watch.enabled in the
// config) the process stays up and runs again whenever new fragments land.
//
// Subcommands cover configuration scaffolding, the commit ledger, and tool
// diagnostics. Keep this package lean: behaviour lives in internal packages
// and is only wired together here.
package main
