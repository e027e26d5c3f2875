// Package meta applies source metadata to destination nodes according to a
// robocopy-style copy-flag set.
package meta

import (
	"errors"
	"fmt"
	"strings"
)

// Flags selects which metadata classes replicate to the destination. The
// letters follow robocopy's /COPY syntax: D=data, A=attributes (permission
// bits), T=timestamps, S=security (full mode incl. setuid/setgid/sticky,
// plus xattrs), O=ownership, U=auditing (accepted, no-op here).
type Flags struct {
	Data       bool
	Attributes bool
	Timestamps bool
	Security   bool
	Owner      bool
	Auditing   bool
}

// DefaultFlags returns DAT: data, attributes, timestamps.
func DefaultFlags() Flags {
	return Flags{Data: true, Attributes: true, Timestamps: true}
}

// AllFlags returns DATSOU.
func AllFlags() Flags {
	return Flags{Data: true, Attributes: true, Timestamps: true, Security: true, Owner: true, Auditing: true}
}

// ParseFlags parses a /COPY-style flag string such as "DAT" or "DATSOU".
func ParseFlags(s string) (Flags, error) {
	var f Flags
	for _, c := range strings.ToUpper(s) {
		switch c {
		case 'D':
			f.Data = true
		case 'A':
			f.Attributes = true
		case 'T':
			f.Timestamps = true
		case 'S':
			f.Security = true
		case 'O':
			f.Owner = true
		case 'U':
			f.Auditing = true
		default:
			return Flags{}, fmt.Errorf("unknown copy flag %q (valid: DATSOU)", string(c))
		}
	}
	if !f.Data {
		return Flags{}, errors.New("copy flags must include D (data)")
	}
	return f, nil
}

// String renders the flag set in /COPY letter order.
func (f Flags) String() string {
	var b strings.Builder
	if f.Data {
		b.WriteByte('D')
	}
	if f.Attributes {
		b.WriteByte('A')
	}
	if f.Timestamps {
		b.WriteByte('T')
	}
	if f.Security {
		b.WriteByte('S')
	}
	if f.Owner {
		b.WriteByte('O')
	}
	if f.Auditing {
		b.WriteByte('U')
	}
	return b.String()
}
