// Package preflight provides readiness checks for the filesystem paths and
// media tools clipmerge depends on.
//
// These checks run in two contexts:
//   - Startup calls RunAll before the first cycle. A failing check is fatal
//     so a misconfigured root is reported once instead of as a failed batch
//     per category.
//   - The CLI "clipmerge doctor" command prints every result, including
//     the detected tool versions.
package preflight
