package model

import (
	"fmt"
	"strings"
)

// Instrument identifies a tradeable symbol on an exchange.
type Instrument struct {
	Exchange string `json:"exchange"`
	Token    string `json:"token"`
}

// Key returns a unique key for this instrument: "exchange:token".
func (i Instrument) Key() string {
	return i.Exchange + ":" + i.Token
}

// ParseInstrument parses an "exchange:token" key.
func ParseInstrument(s string) (Instrument, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Instrument{}, fmt.Errorf("instrument %q: want exchange:token", s)
	}
	return Instrument{Exchange: strings.ToUpper(parts[0]), Token: parts[1]}, nil
}
