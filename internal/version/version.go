// Package version provides build and version information for Sentient Timeline.
package version

// Version is the current release version of the sequencer.
// Override at build time with:
//
//	go build -ldflags "-X github.com/AaronLay10/SentientTimeline/internal/version.Version=x.y.z"
var Version = "0.3.0"
