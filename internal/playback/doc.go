// Package playback holds playback state for a completed analysis artifact.
//
// A Controller is only available for completed jobs. Play controls stay
// disabled until Probe resolves the artifact duration; seeking is allowed at
// any time and is clamped to the artifact bounds.
package playback
