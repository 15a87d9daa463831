package xsk

import (
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

// inNetns executes fn with the calling thread switched to the network
// namespace at path. An empty path runs fn in the current namespace.
// The original namespace is restored afterwards, even if fn panics.
//
// Sockets and netlink queries inherit the thread's namespace at creation
// time, so everything that must see the target device runs under this.
func inNetns(path string, fn func() error) error {
	if path == "" {
		return fn()
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	original, err := os.Open("/proc/self/ns/net")
	if err != nil {
		return fmt.Errorf("open current netns: %w", err)
	}
	defer original.Close()

	target, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open target netns %s: %w", path, err)
	}
	defer target.Close()

	if err := unix.Setns(int(target.Fd()), unix.CLONE_NEWNET); err != nil {
		return fmt.Errorf("setns to %s: %w", path, err)
	}
	defer func() {
		// The thread is pinned, so a failed restore only poisons
		// this goroutine's thread, which the runtime then retires.
		_ = unix.Setns(int(original.Fd()), unix.CLONE_NEWNET)
	}()

	return fn()
}
