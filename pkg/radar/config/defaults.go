// Package config provides configuration management for radarsync.
package config

import "time"

// Default configuration values for radarsync.
const (
	// EnvPrefix prefixes environment variables that override config keys.
	EnvPrefix = "RADARSYNC"

	// DefaultRemoteAddress is the Bureau of Meteorology anonymous FTP server.
	DefaultRemoteAddress = "ftp2.bom.gov.au:21"

	// DefaultRemoteUser and DefaultRemotePassword are the anonymous login.
	DefaultRemoteUser     = "anonymous"
	DefaultRemotePassword = "guest"

	// DefaultFramesDir is the remote directory holding radar frames for every level.
	DefaultFramesDir = "anon/gen/radar"

	// DefaultReferencesDir is the remote directory holding background and location overlays.
	DefaultReferencesDir = "anon/gen/radar_transparencies"

	// DefaultRemoteTimeout bounds dialing the remote server.
	DefaultRemoteTimeout = 30 * time.Second

	// DefaultExclude is the substring that excludes a listing entry (animated loops).
	DefaultExclude = ".gif"

	// DefaultMarker marks frames that have not been consumed yet.
	DefaultMarker = "_"

	// DefaultMinFree is the free-space floor below which downloads stop.
	DefaultMinFree = "64MB"

	// DefaultLongWait is the wait between passes after frames were obtained.
	DefaultLongWait = 5 * time.Minute

	// DefaultShortWait is the retry interval while a pass keeps finding nothing.
	DefaultShortWait = time.Minute

	// DefaultTick is the cancellation polling granularity of waits.
	DefaultTick = time.Second

	// DefaultHistoryRetentionDays is how long history entries are kept.
	DefaultHistoryRetentionDays = 7

	// LevelCount is the number of zoom levels radarsync maintains.
	LevelCount = 3
)

// DefaultLevels are the 256km, 128km and 64km products of the Newcastle radar.
var DefaultLevels = []string{"IDR042", "IDR043", "IDR044"}
