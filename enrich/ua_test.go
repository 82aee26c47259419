package enrich

import "testing"

func TestClassifyUserAgent(t *testing.T) {
	tests := []struct {
		name       string
		ua         string
		deviceType string
		browser    string
	}{
		{
			name:       "chrome on windows",
			ua:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",
			deviceType: "desktop",
			browser:    "Chrome",
		},
		{
			name:       "safari on iphone",
			ua:         "Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1",
			deviceType: "mobile",
			browser:    "Safari",
		},
		{
			name:       "googlebot",
			ua:         "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			deviceType: "bot",
			browser:    "Googlebot",
		},
		{
			name:       "empty",
			ua:         "",
			deviceType: "unknown",
			browser:    "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyUserAgent(tt.ua)
			if got.DeviceType != tt.deviceType {
				t.Errorf("DeviceType = %q, want %q", got.DeviceType, tt.deviceType)
			}
			if got.Browser != tt.browser {
				t.Errorf("Browser = %q, want %q", got.Browser, tt.browser)
			}
		})
	}
}

func TestClassifyGarbageDoesNotPanic(t *testing.T) {
	got := ClassifyUserAgent("!!!! not a user agent \x00\x01")
	if got.DeviceType == "" || got.Browser == "" || got.OS == "" {
		t.Fatal("classification fields must never be empty")
	}
}
