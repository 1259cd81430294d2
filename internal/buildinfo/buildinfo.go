// Package buildinfo carries version data stamped in with -ldflags, e.g.
//
//	go build -ldflags "-X receiptd/internal/buildinfo.Version=v0.3.0 -X receiptd/internal/buildinfo.Commit=$(git rev-parse --short HEAD)"
package buildinfo

import (
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = ""
	Date    = ""
	Go      = runtime.Version()
	OS      = runtime.GOOS
	Arch    = runtime.GOARCH
)

// String formats the build for --version output.
func String(binary string) string {
	s := fmt.Sprintf("%s %s", binary, Version)
	if Commit != "" {
		s += " (" + Commit
		if Date != "" {
			s += ", " + Date
		}
		s += ")"
	}
	return s + fmt.Sprintf(" %s %s/%s", Go, OS, Arch)
}
