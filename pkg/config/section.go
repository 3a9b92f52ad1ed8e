package config

import (
	"strconv"
	"strings"
)

// Section provides typed access to the options of one config section.
type Section struct {
	name    string
	options map[string]string
}

// Name returns the section name.
func (s *Section) Name() string {
	return s.name
}

// HasOption reports whether an option is present.
func (s *Section) HasOption(option string) bool {
	_, ok := s.options[strings.ToLower(option)]
	return ok
}

// Get returns a string option. With no fallback a missing option is an error.
func (s *Section) Get(option string, fallback ...string) (string, error) {
	if v, ok := s.options[strings.ToLower(option)]; ok {
		return v, nil
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return "", errMissingOption(s.name, option)
}

// GetInt returns an integer option.
func (s *Section) GetInt(option string, fallback ...int) (int, error) {
	v, ok := s.options[strings.ToLower(option)]
	if !ok {
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return 0, errMissingOption(s.name, option)
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, errInvalidValue(s.name, option, v, "integer")
	}
	return i, nil
}

// GetIntMin returns an integer option that must be at least min.
func (s *Section) GetIntMin(option string, min int, fallback ...int) (int, error) {
	v, err := s.GetInt(option, fallback...)
	if err != nil {
		return 0, err
	}
	if v < min {
		return 0, errOutOfRange(s.name, option, float64(v), "must have minimum of "+strconv.Itoa(min))
	}
	return v, nil
}

// GetFloat returns a float option.
func (s *Section) GetFloat(option string, fallback ...float64) (float64, error) {
	v, ok := s.options[strings.ToLower(option)]
	if !ok {
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return 0, errMissingOption(s.name, option)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, errInvalidValue(s.name, option, v, "float")
	}
	return f, nil
}

// GetFloatAbove returns a float option that must be strictly greater than min.
func (s *Section) GetFloatAbove(option string, min float64, fallback ...float64) (float64, error) {
	v, err := s.GetFloat(option, fallback...)
	if err != nil {
		return 0, err
	}
	if v <= min {
		return 0, errOutOfRange(s.name, option, v, "must be above "+strconv.FormatFloat(min, 'g', -1, 64))
	}
	return v, nil
}

// GetBool returns a boolean option ("true"/"false", "1"/"0", "yes"/"no").
func (s *Section) GetBool(option string, fallback ...bool) (bool, error) {
	v, ok := s.options[strings.ToLower(option)]
	if !ok {
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return false, errMissingOption(s.name, option)
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return false, errInvalidValue(s.name, option, v, "boolean")
}
