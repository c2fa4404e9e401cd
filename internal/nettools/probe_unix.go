//go:build darwin || linux
// +build darwin linux

package nettools

import (
	"golang.org/x/sys/unix"
)

var _ = func() error { // make sure this executes before func init()
	probe = pollIdle
	return nil
}()

// pollIdle polls the descriptor for readability without blocking. An idle
// connection must poll quiet, POLLIN here means EOF or stray data.
func pollIdle(fd int) bool {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 0)
	if err != nil {
		if err == unix.EINTR {
			return true // inconclusive, don't throw the connection away
		}
		return false
	}
	if n == 0 {
		return true
	}
	return fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) == 0
}
