package ipam

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrAddressPoolExhausted — все 253 хостовых слота пула заняты.
var ErrAddressPoolExhausted = errors.New("address pool exhausted")

// NextAddress выбирает первый свободный base.N/32 линейным проходом по
// хостам 2..254 пула. Детерминирован при фиксированном множестве занятых
// адресов. Адрес не резервируется — аллокатор только советует, гонка двух
// параллельных созданий возможна и документирована.
func NextAddress(subnetCIDR string, used []string) (string, error) {
	_, ipnet, err := net.ParseCIDR(subnetCIDR)
	if err != nil {
		return "", fmt.Errorf("ipam: bad subnet %q: %w", subnetCIDR, err)
	}
	base := ipnet.IP.To4()
	if base == nil {
		return "", fmt.Errorf("ipam: only IPv4 pools are supported, got %q", subnetCIDR)
	}

	taken := make(map[string]struct{}, len(used))
	for _, entry := range used {
		// allowed-address может быть списком CIDR через запятую
		for _, a := range strings.Split(entry, ",") {
			a = strings.TrimSpace(a)
			if i := strings.IndexByte(a, '/'); i >= 0 {
				a = a[:i]
			}
			if a != "" {
				taken[a] = struct{}{}
			}
		}
	}

	for host := 2; host <= 254; host++ {
		ip := net.IPv4(base[0], base[1], base[2], byte(host))
		if _, busy := taken[ip.String()]; !busy {
			return ip.String() + "/32", nil
		}
	}
	return "", ErrAddressPoolExhausted
}
