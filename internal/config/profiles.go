package config

import (
	"fmt"
	"os"
	"sort"

	yaml "gopkg.in/yaml.v2"
)

// Profile is one named set of baseband parameters for an operating
// scenario (throughput versus dense-field reliability).
type Profile struct {
	Name    string `yaml:"name" json:"name"`
	Speed   int    `yaml:"speed" json:"speed"`
	QValue  int    `yaml:"q_value" json:"q_value"`
	Session int    `yaml:"session" json:"session"`
	Target  int    `yaml:"target" json:"target"`
}

// defaultProfiles covers the common scenarios when no profiles file is
// deployed next to the binary.
func defaultProfiles() map[int]Profile {
	return map[int]Profile{
		1: {Name: "Performance", Speed: 0, QValue: 7, Session: 0, Target: 1},
		2: {Name: "Density", Speed: 1, QValue: 4, Session: 1, Target: 0},
		3: {Name: "Balanced", Speed: 2, QValue: 5, Session: 2, Target: 2},
	}
}

// LoadProfiles reads the profile table from a YAML file, falling back to
// the built-in table when the file does not exist.
func LoadProfiles(path string) (map[int]Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultProfiles(), nil
		}
		return nil, fmt.Errorf("read profiles file: %w", err)
	}

	var profiles map[int]Profile
	if err := yaml.Unmarshal(raw, &profiles); err != nil {
		return nil, fmt.Errorf("parse profiles file: %w", err)
	}
	if len(profiles) == 0 {
		return defaultProfiles(), nil
	}

	for id, p := range profiles {
		if p.QValue < 0 || p.QValue > 15 {
			return nil, fmt.Errorf("profile %d: q_value %d out of range 0..15", id, p.QValue)
		}
		if p.Session < 0 || p.Session > 3 {
			return nil, fmt.Errorf("profile %d: session %d out of range 0..3", id, p.Session)
		}
		if p.Target < 0 || p.Target > 2 {
			return nil, fmt.Errorf("profile %d: target %d out of range 0..2", id, p.Target)
		}
	}
	return profiles, nil
}

// ProfileIDs returns the profile numbers in ascending order.
func ProfileIDs(profiles map[int]Profile) []int {
	ids := make([]int, 0, len(profiles))
	for id := range profiles {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
