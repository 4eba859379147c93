package middleware

import (
	"fmt"
	"net"

	"github.com/labstack/echo/v4"
)

// ClientIP builds the extractor behind c.RealIP().  With no trusted
// proxies the peer address is used and forwarding headers are ignored.
// Otherwise X-Forwarded-For is walked from the right and only hops inside
// the listed CIDRs are skipped; the implicit loopback, link-local and
// private ranges are not trusted.
func ClientIP(trustedCIDRs []string) (echo.IPExtractor, error) {
	if len(trustedCIDRs) == 0 {
		return echo.ExtractIPDirect(), nil
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range trustedCIDRs {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", cidr, err)
		}
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}
