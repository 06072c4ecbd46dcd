// Package upload validates local media and submits it to the analysis
// pipeline.
//
// Validator checks a Candidate before any network call. Coordinator runs a
// single upload session through its phases and reports monotonic progress,
// either from transferred bytes or from the synthetic Estimator.
package upload
