package shared

import (
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// AnonymizeIP strips the host-identifying portion of an address before it
// is persisted. IPv4 loses its last octet ("203.0.113.42" becomes
// "203.0.113.xxx"); IPv6 is truncated to its /64 network prefix. Raw
// addresses must never reach the backing store.
func AnonymizeIP(ip string) string {
	if ip == "" {
		return Unknown
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Unknown
	}

	if v4 := parsed.To4(); v4 != nil {
		parts := strings.Split(v4.String(), ".")
		parts[3] = "xxx"
		return strings.Join(parts, ".")
	}

	masked := parsed.Mask(net.CIDRMask(64, 128))
	return masked.String() + "/64"
}

// GetClientIP resolves the caller address, preferring proxy headers over
// the raw remote address.
func GetClientIP(c *fiber.Ctx) string {
	// Check for forwarded IP first (for load balancers/proxies)
	forwarded := c.Get("X-Forwarded-For")
	if forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			ip := strings.TrimSpace(ips[0])
			if ip != "" {
				return ip
			}
		}
	}

	// Check for real IP header
	realIP := c.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	// Check Cloudflare header
	cfIP := c.Get("CF-Connecting-IP")
	if cfIP != "" {
		return cfIP
	}

	// Fall back to remote address
	ip, _, err := net.SplitHostPort(c.Context().RemoteAddr().String())
	if err != nil {
		return c.Context().RemoteAddr().String()
	}

	return ip
}
