package peers

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
)

var hostnameRegexp = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?)*$`)

// ParseAddress checks that addr is a host:port pair a node can be dialed at
// and returns it in normal form.
func ParseAddress(addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}

	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("invalid port %q", port)
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsUnspecified() {
			return "", fmt.Errorf("unspecified host %q", host)
		}
		return net.JoinHostPort(ip.String(), strconv.Itoa(p)), nil
	}

	if len(host) > 253 || !hostnameRegexp.MatchString(host) {
		return "", fmt.Errorf("invalid host %q", host)
	}

	return net.JoinHostPort(host, strconv.Itoa(p)), nil
}

// ExcludePeer is used to exclude a single address from a list of addresses.
func ExcludePeer(addrs []string, addr string) (int, []string) {
	index := -1
	others := make([]string, 0, len(addrs))
	for i, a := range addrs {
		if a != addr {
			others = append(others, a)
		} else {
			index = i
		}
	}
	return index, others
}
