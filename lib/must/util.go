package must

import "net/url"

// ParseURL parses a URL that is known to be valid, e.g. a constant or a validated configuration value.
func ParseURL(s string) *url.URL {
	u, err := url.Parse(s)
	if err != nil {
		panic("invalid URL: " + err.Error())
	}
	return u
}
