package schema

import (
	"net/mail"
	"net/url"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var phonePattern = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// Formats holds the string formats known to Format.
var Formats = map[string]func(string) bool{
	"date": func(s string) bool {
		_, err := time.Parse(time.DateOnly, s)
		return err == nil
	},
	"datetime": func(s string) bool {
		_, err := time.Parse(time.RFC3339Nano, s)
		return err == nil
	},
	"url": func(s string) bool {
		u, err := url.ParseRequestURI(s)
		return err == nil && u.Scheme != "" && u.Host != ""
	},
	"uuid": func(s string) bool {
		_, err := uuid.Parse(s)
		return err == nil && len(s) == 36
	},
	"phone": phonePattern.MatchString,
	"email": func(s string) bool {
		address, err := mail.ParseAddress(s)
		return err == nil && address.Address == s
	},
}
