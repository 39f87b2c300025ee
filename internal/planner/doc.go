// Package planner turns a catalog snapshot into merge batches.
//
// Root mode groups every category's fragments by the date key in their
// names. Scoped mode treats one named sub-folder of each category as a
// single batch keyed by the folder name. In both modes a batch whose key
// already has a merged artifact starts with a synthetic reference to that
// artifact, and a batch with no new fragments is never scheduled.
package planner
