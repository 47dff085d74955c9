package subscriber

import (
	"strings"

	"github.com/mileusna/useragent"
)

// Gate classifies a browser by whether it can hold a push subscription.
type Gate string

const (
	GateSupported    Gate = "supported"
	GateUnsupported  Gate = "unsupported"
	GateInstallFirst Gate = "install-first"
)

const (
	unsupportedMessage  = "Push notifications are not available in this browser. On iPhone and iPad, open this page in Safari instead."
	installFirstMessage = "To get notifications, add this site to your Home Screen first and open it from there."
)

// in-app browsers on iOS run on WebKit without the push capability
var inAppMarkers = []string{"FBAN", "FBAV", "FB_IAB", "Instagram", "Line/", "GSA/", "MicroMessenger", "Twitter"}

// DeviceSupport is the outcome of DetectDevice.
type DeviceSupport struct {
	Gate    Gate   `json:"gate"`
	Message string `json:"message,omitempty"`
}

// Supported reports whether the subscribe button should be offered.
func (d DeviceSupport) Supported() bool {
	return d.Gate == GateSupported
}

// DetectDevice decides from the user agent whether web push can work.
// On iOS only Safari can subscribe, and only when the site runs as an
// installed Home Screen app. Everything else is left to the capability
// check on the platform itself.
func DetectDevice(userAgent string, standalone bool) DeviceSupport {
	ua := useragent.Parse(userAgent)
	if ua.OS != useragent.IOS {
		return DeviceSupport{Gate: GateSupported}
	}
	if ua.Name != useragent.Safari || isInApp(userAgent) {
		return DeviceSupport{Gate: GateUnsupported, Message: unsupportedMessage}
	}
	if !standalone {
		return DeviceSupport{Gate: GateInstallFirst, Message: installFirstMessage}
	}
	return DeviceSupport{Gate: GateSupported}
}

func isInApp(userAgent string) bool {
	for _, marker := range inAppMarkers {
		if strings.Contains(userAgent, marker) {
			return true
		}
	}
	return false
}
