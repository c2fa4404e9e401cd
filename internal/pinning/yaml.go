package pinning

import (
	"os"

	"gopkg.in/yaml.v3"
)

// pin set file format:
//
//	pins:
//	  - pattern: "*.example.com"
//	    hashes:
//	      - "sha256/AAAA...="
type pinFile struct {
	Pins []struct {
		Pattern string   `yaml:"pattern"`
		Hashes  []string `yaml:"hashes"`
	} `yaml:"pins"`
}

// LoadFile reads a pin set from a YAML file.
func LoadFile(path string) (*Pinner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(data)
}

// Load parses a pin set from YAML bytes.
func Load(data []byte) (*Pinner, error) {
	var f pinFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	pins := make(map[string][]string, len(f.Pins))
	for _, e := range f.Pins {
		pins[e.Pattern] = append(pins[e.Pattern], e.Hashes...)
	}
	return New(pins)
}
