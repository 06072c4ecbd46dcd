// Package preflight runs environment checks before work that would otherwise
// fail halfway: pipeline reachability and credentials, download directory
// access and free space, and the external playback tools.
package preflight
