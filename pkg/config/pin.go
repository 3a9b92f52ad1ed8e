package config

import "strings"

// Pin is a parsed pin specification.
type Pin struct {
	Name   string // pin name, e.g. "gpio21"
	Invert bool   // inverted logic (! prefix)
	Pullup int    // 1 = pull-up (^), -1 = pull-down (~), 0 = none
}

// PinOptions restricts which prefixes a pin spec may carry.
type PinOptions struct {
	CanInvert bool
	CanPullup bool
}

// ParsePin parses a pin spec of the form [^|~][!]pin_name.
// Examples: "gpio2", "!gpio21", "^!gpio21".
func ParsePin(desc string, opts PinOptions) (Pin, error) {
	d := strings.TrimSpace(desc)
	if d == "" {
		return Pin{}, newError("", "", "empty pin specification")
	}

	var p Pin
	if opts.CanPullup && len(d) > 0 {
		if d[0] == '^' {
			p.Pullup = 1
			d = strings.TrimSpace(d[1:])
		} else if d[0] == '~' {
			p.Pullup = -1
			d = strings.TrimSpace(d[1:])
		}
	}
	if opts.CanInvert && len(d) > 0 && d[0] == '!' {
		p.Invert = true
		d = strings.TrimSpace(d[1:])
	}

	if d == "" {
		return Pin{}, newError("", "", "empty pin name in specification: "+desc)
	}
	if strings.ContainsAny(d, "^~!: ") {
		return Pin{}, newError("", "", "invalid characters in pin name: "+desc)
	}
	p.Name = d
	return p, nil
}

// GetPin returns a pin option from the section.
func (s *Section) GetPin(option string, opts PinOptions) (Pin, error) {
	v, err := s.Get(option)
	if err != nil {
		return Pin{}, err
	}
	p, err := ParsePin(v, opts)
	if err != nil {
		return Pin{}, &Error{Section: s.name, Option: option, Message: err.Error(), Cause: err}
	}
	return p, nil
}
