package sys

import (
	"os"
	"regexp"
	"strings"
)

var isCgroupMatch = regexp.MustCompile("(docker|lxc|rkt|libpod|kubepods|containerd)")

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsRunningInsideContainer returns true if the process is running inside a container environment.
func IsRunningInsideContainer() bool {
	return insideContainer("/")
}

func insideContainer(root string) bool {
	// Docker marks this file
	if Exists(root + ".dockerenv") {
		return true
	}

	// Podman, Docker, or CRI-O mark this file
	if Exists(root + "run/.containerenv") {
		return true
	}

	// Fallback to cgroup patterns
	if buf, _ := os.ReadFile(root + "proc/1/cgroup"); len(buf) > 0 {
		return isCgroupMatch.MatchString(strings.TrimSpace(string(buf)))
	}
	return false
}
