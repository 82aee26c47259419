// Package enrich classifies user agents and resolves IP addresses to
// countries for click event enrichment.
package enrich

import (
	"github.com/mileusna/useragent"
)

// Classification is the device/browser/os breakdown of a user agent string.
type Classification struct {
	DeviceType string
	Browser    string
	OS         string
}

// ClassifyUserAgent parses a user agent string. It is pure and local with no
// failure mode; unrecognized agents classify as "unknown".
func ClassifyUserAgent(uaString string) Classification {
	if uaString == "" {
		return Classification{DeviceType: "unknown", Browser: "unknown", OS: "unknown"}
	}

	ua := useragent.Parse(uaString)

	deviceType := "unknown"
	switch {
	case ua.Bot:
		deviceType = "bot"
	case ua.Mobile:
		deviceType = "mobile"
	case ua.Tablet:
		deviceType = "tablet"
	case ua.Desktop:
		deviceType = "desktop"
	}

	browser := ua.Name
	if browser == "" {
		browser = "unknown"
	}
	os := ua.OS
	if os == "" {
		os = "unknown"
	}

	return Classification{DeviceType: deviceType, Browser: browser, OS: os}
}
