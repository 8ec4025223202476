package shared

import "strings"

// Classification is the derived shape of a visitor's user agent.
type Classification struct {
	DeviceType string `json:"device_type"`
	Browser    string `json:"browser"`
	OS         string `json:"os"`
}

var (
	mobileKeywords = []string{"mobile", "iphone", "ipod", "blackberry", "windows phone", "opera mini"}
	tabletKeywords = []string{"tablet", "ipad", "kindle", "silk", "playbook"}
)

// ClassifyUserAgent maps a raw user-agent string plus an optional screen
// width (0 when unknown) to device/browser/OS buckets. Pure and total; an
// empty user agent classifies as unknown across the board.
//
// The substring checks overlap (Edge user agents contain "chrome", Chrome
// user agents contain "safari"), so the check order encodes precedence and
// must not be reordered.
func ClassifyUserAgent(userAgent string, screenWidth int) Classification {
	if userAgent == "" {
		return Classification{DeviceType: Unknown, Browser: Unknown, OS: Unknown}
	}

	ua := strings.ToLower(userAgent)

	return Classification{
		DeviceType: classifyDevice(ua, screenWidth),
		Browser:    classifyBrowser(ua),
		OS:         classifyOS(ua),
	}
}

func classifyDevice(ua string, screenWidth int) string {
	// Tablet markers win over mobile ones: iPad agents also carry the
	// "Mobile" token, so the mobile set would otherwise shadow them.
	for _, kw := range tabletKeywords {
		if strings.Contains(ua, kw) {
			return DeviceTablet
		}
	}
	for _, kw := range mobileKeywords {
		if strings.Contains(ua, kw) {
			return DeviceMobile
		}
	}
	if screenWidth > 0 {
		if screenWidth < 768 {
			return DeviceMobile
		}
		if screenWidth < 1024 {
			return DeviceTablet
		}
	}
	return DeviceDesktop
}

func classifyBrowser(ua string) string {
	switch {
	case strings.Contains(ua, "chrome") && !strings.Contains(ua, "edg"):
		return "Chrome"
	case strings.Contains(ua, "firefox"):
		return "Firefox"
	case strings.Contains(ua, "safari") && !strings.Contains(ua, "chrome"):
		return "Safari"
	case strings.Contains(ua, "edg"):
		return "Edge"
	case strings.Contains(ua, "opera") || strings.Contains(ua, "opr"):
		return "Opera"
	default:
		return "Other"
	}
}

func classifyOS(ua string) string {
	switch {
	case strings.Contains(ua, "windows"):
		return "Windows"
	// iPhone agents advertise "like Mac OS X", and Android agents
	// advertise "Linux", so both must be checked before their desktop
	// counterparts.
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"), strings.Contains(ua, "ios"):
		return "iOS"
	case strings.Contains(ua, "mac os"):
		return "macOS"
	case strings.Contains(ua, "android"):
		return "Android"
	case strings.Contains(ua, "linux"):
		return "Linux"
	default:
		return "Other"
	}
}
