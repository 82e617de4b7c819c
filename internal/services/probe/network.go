package probe

import (
	"context"
	"errors"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Pinger checks whether a host answers before any stream-level probe is tried.
type Pinger interface {
	Ping(ctx context.Context, host string, timeout time.Duration) bool
}

// CommandPinger runs the system ping binary once with a bounded wait.
type CommandPinger struct{}

func (CommandPinger) Ping(ctx context.Context, host string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	waitSeconds := strconv.Itoa(max(1, int(timeout/time.Second)-1))
	args := []string{"-c", "1", "-W", waitSeconds, host}
	if runtime.GOOS == "windows" {
		args = []string{"-n", "1", "-w", strconv.Itoa(int(timeout / time.Millisecond)), host}
	}

	return exec.CommandContext(ctx, "ping", args...).Run() == nil
}

// Resolver returns the host's own IPv4 address.
type Resolver interface {
	LocalIPv4() (net.IP, error)
}

// HostnameResolver resolves the machine's hostname to its first IPv4 address.
type HostnameResolver struct{}

var errNoIPv4 = errors.New("no IPv4 address for host")

func (HostnameResolver) LocalIPv4() (net.IP, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, err
	}
	ips, err := net.LookupIP(hostname)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, errNoIPv4
}

// LocalPrefix returns the first three octets of the local address, e.g. "192.168.1".
func LocalPrefix(r Resolver) (string, error) {
	ip, err := r.LocalIPv4()
	if err != nil {
		return "", err
	}
	v4 := ip.To4()
	if v4 == nil {
		return "", errNoIPv4
	}
	parts := strings.Split(v4.String(), ".")
	return strings.Join(parts[:3], "."), nil
}
