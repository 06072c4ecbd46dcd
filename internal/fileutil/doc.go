// Package fileutil writes downloaded artifacts safely and names them for the
// local filesystem.
package fileutil
