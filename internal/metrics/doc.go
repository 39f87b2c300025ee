// Package metrics declares the Prometheus instruments for clipmerge and the
// optional HTTP endpoint that exposes them.
//
// Instruments are registered with the default registry through promauto.
// Other packages never touch them directly; they report through Recorder,
// which satisfies the observer interfaces declared by the pipeline and the
// watcher. The endpoint serves:
//
//	/metrics     Prometheus exposition
//	/healthz     liveness
//	/api/status  current state and ledger counts as JSON
package metrics
