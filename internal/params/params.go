// Package params holds the electrochemical parameter set and its persisted
// JSON form.
package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// DefaultFile is the parameter file name used when no path is configured.
const DefaultFile = "Commands.json"

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrMissingKey       = errors.New("missing parameter key")
)

// Keys lists the persisted keys in form order.
var Keys = []string{"E0f", "concT", "dElectrode", "DX", "DA", "DB", "DC"}

// Set is the parameter record for one conversion run. It is passed by value;
// editing the form never reaches a run already in flight.
type Set struct {
	E0f        float64 // formal potential, V
	ConcT      float64 // bulk concentration of X, mol/m^3
	DElectrode float64 // electrode radius, m
	DX         float64 // diffusion coefficient of X, m^2/s
	DA         float64
	DB         float64
	DC         float64
}

// Faraday is Faraday's constant, C/mol.
const Faraday = 96485.0

// FluxScale is the normalization constant F*2*pi*r*c*D applied to flux.
func (s Set) FluxScale() float64 {
	return Faraday * 2 * math.Pi * s.DElectrode * s.ConcT * s.DX
}

// Validate checks the fields consumed by the transforms. ConcT, DElectrode
// and DX divide the flux column and must be strictly positive.
func (s Set) Validate() error {
	for _, f := range []struct {
		key string
		val float64
	}{
		{"E0f", s.E0f}, {"concT", s.ConcT}, {"dElectrode", s.DElectrode}, {"DX", s.DX},
		{"DA", s.DA}, {"DB", s.DB}, {"DC", s.DC},
	} {
		if math.IsNaN(f.val) || math.IsInf(f.val, 0) {
			return fmt.Errorf("%w: %s must be finite", ErrInvalidParameter, f.key)
		}
	}
	if s.ConcT <= 0 {
		return fmt.Errorf("%w: concT must be > 0", ErrInvalidParameter)
	}
	if s.DElectrode <= 0 {
		return fmt.Errorf("%w: dElectrode must be > 0", ErrInvalidParameter)
	}
	if s.DX <= 0 {
		return fmt.Errorf("%w: DX must be > 0", ErrInvalidParameter)
	}
	if scale := s.FluxScale(); scale == 0 || math.IsInf(scale, 0) {
		return fmt.Errorf("%w: flux scale %g is not usable", ErrInvalidParameter, scale)
	}
	return nil
}

// Get returns the value stored under a persisted key.
func (s Set) Get(key string) (float64, bool) {
	switch key {
	case "E0f":
		return s.E0f, true
	case "concT":
		return s.ConcT, true
	case "dElectrode":
		return s.DElectrode, true
	case "DX":
		return s.DX, true
	case "DA":
		return s.DA, true
	case "DB":
		return s.DB, true
	case "DC":
		return s.DC, true
	}
	return 0, false
}

// With returns a copy of s with key set to v.
func (s Set) With(key string, v float64) (Set, error) {
	switch key {
	case "E0f":
		s.E0f = v
	case "concT":
		s.ConcT = v
	case "dElectrode":
		s.DElectrode = v
	case "DX":
		s.DX = v
	case "DA":
		s.DA = v
	case "DB":
		s.DB = v
	case "DC":
		s.DC = v
	default:
		return s, fmt.Errorf("unknown parameter key %q", key)
	}
	return s, nil
}

// FromMap builds a set from a key->value record. Every key in Keys must be
// present.
func FromMap(m map[string]float64) (Set, error) {
	var s Set
	for _, key := range Keys {
		v, ok := m[key]
		if !ok {
			return Set{}, fmt.Errorf("%w: %s", ErrMissingKey, key)
		}
		s, _ = s.With(key, v)
	}
	return s, nil
}

func (s Set) Map() map[string]float64 {
	m := make(map[string]float64, len(Keys))
	for _, key := range Keys {
		m[key], _ = s.Get(key)
	}
	return m
}

// Load reads the persisted parameter file. A missing file is not an error and
// reports ok=false; a file lacking any key is.
func Load(path string) (Set, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Set{}, false, nil
		}
		return Set{}, false, fmt.Errorf("failed to read parameter file: %w", err)
	}
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return Set{}, false, fmt.Errorf("failed to decode parameter file %s: %w", path, err)
	}
	s, err := FromMap(raw)
	if err != nil {
		return Set{}, false, fmt.Errorf("parameter file %s: %w", path, err)
	}
	return s, true, nil
}

// Save overwrites the parameter file with all seven keys.
func Save(path string, s Set) error {
	data, err := json.Marshal(s.Map())
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create parameter directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write parameter file: %w", err)
	}
	return nil
}
