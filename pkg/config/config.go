package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// File is a parsed INI-style configuration file.
type File struct {
	sections map[string]*Section
	order    []string
}

// Load reads and parses a configuration file.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: unable to open %s: %w", path, err)
	}
	defer f.Close()

	c := &File{sections: make(map[string]*Section)}
	var current *Section

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			name := strings.TrimSpace(line[1 : len(line)-1])
			if name == "" {
				return nil, fmt.Errorf("config: empty section header at line %d in %s", lineNum, path)
			}
			current = c.addSection(name)
			continue
		}

		if current == nil {
			return nil, fmt.Errorf("config: option before any section at line %d in %s", lineNum, path)
		}

		kv := strings.SplitN(line, ":", 2)
		if len(kv) != 2 {
			kv = strings.SplitN(line, "=", 2)
		}
		if len(kv) != 2 {
			return nil, fmt.Errorf("config: malformed line %d in %s", lineNum, path)
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		if key == "" {
			return nil, fmt.Errorf("config: empty option name at line %d in %s", lineNum, path)
		}
		current.options[key] = strings.TrimSpace(kv[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: error reading %s: %w", path, err)
	}
	return c, nil
}

// LoadString parses configuration from a string, mainly for tests.
func LoadString(data string) (*File, error) {
	tmp, err := os.CreateTemp("", "feeder-config-*.cfg")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(data); err != nil {
		tmp.Close()
		return nil, err
	}
	tmp.Close()
	return Load(tmp.Name())
}

func (c *File) addSection(name string) *Section {
	if s, ok := c.sections[name]; ok {
		return s
	}
	s := &Section{name: name, options: make(map[string]string)}
	c.sections[name] = s
	c.order = append(c.order, name)
	return s
}

// HasSection reports whether the named section exists.
func (c *File) HasSection(name string) bool {
	_, ok := c.sections[name]
	return ok
}

// Section returns the named section, or an error if it is missing.
func (c *File) Section(name string) (*Section, error) {
	s, ok := c.sections[name]
	if !ok {
		return nil, errMissingSection(name)
	}
	return s, nil
}

// SectionNames returns the section names in file order.
func (c *File) SectionNames() []string {
	names := make([]string, len(c.order))
	copy(names, c.order)
	return names
}
