package httpserver

import (
	"net"

	"github.com/labstack/echo/v4"
)

// ClientIP picks how c.RealIP() resolves the caller. With no trusted proxies
// forwarding headers are ignored and the TCP peer is the client. Otherwise
// X-Forwarded-For is walked right to left and only hops inside trusted are
// skipped; echo's default loopback and private-range trust is turned off.
func ClientIP(trusted []*net.IPNet) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}

	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range trusted {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}
