package webhook

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
)

// firstActivatedFD is the first descriptor systemd passes (after stdio).
const firstActivatedFD = 3

// listen returns the first socket handed over by systemd socket activation,
// or a new TCP listener on addr when the process was not socket-activated.
func listen(addr string, logger *slog.Logger) (net.Listener, error) {
	activated, err := activatedListeners(os.Getenv, os.Getpid())
	if err != nil {
		return nil, err
	}
	if len(activated) > 0 {
		for _, extra := range activated[1:] {
			_ = extra.Close()
		}
		logger.Info("using socket-activated listener", "addr", activated[0].Addr().String(), "count", len(activated))
		clearActivationEnv()
		return activated[0], nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ln, nil
}

// activatedListeners inspects LISTEN_PID and LISTEN_FDS. It returns nil when
// activation is absent or addressed to another process.
func activatedListeners(getenv func(string) string, pid int) ([]net.Listener, error) {
	pidStr := getenv("LISTEN_PID")
	if pidStr == "" {
		return nil, nil
	}
	listenPID, err := strconv.Atoi(pidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid LISTEN_PID %q: %w", pidStr, err)
	}
	if listenPID != pid {
		return nil, nil
	}

	fdsStr := getenv("LISTEN_FDS")
	if fdsStr == "" {
		return nil, nil
	}
	numFDs, err := strconv.Atoi(fdsStr)
	if err != nil {
		return nil, fmt.Errorf("invalid LISTEN_FDS %q: %w", fdsStr, err)
	}

	listeners := make([]net.Listener, 0, max(numFDs, 0))
	for i := 0; i < numFDs; i++ {
		fd := firstActivatedFD + i
		file := os.NewFile(uintptr(fd), fmt.Sprintf("systemd-socket-%d", i))
		if file == nil {
			return nil, fmt.Errorf("failed to create file for fd %d", fd)
		}

		ln, err := net.FileListener(file)
		// the listener holds its own duplicate of the descriptor
		_ = file.Close()
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return nil, fmt.Errorf("failed to create listener from fd %d: %w", fd, err)
		}
		listeners = append(listeners, ln)
	}
	return listeners, nil
}

// clearActivationEnv keeps child processes (git, java) from inheriting the sockets' env.
func clearActivationEnv() {
	_ = os.Unsetenv("LISTEN_PID")
	_ = os.Unsetenv("LISTEN_FDS")
	_ = os.Unsetenv("LISTEN_FDNAMES")
}
