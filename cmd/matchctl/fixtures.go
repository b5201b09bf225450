package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/alem-hub/afterschool-matching/internal/domain/profile"
)

// pairFixture is the file read by `matchctl score`:
//
//	teacher:
//	  id: t-1
//	  currentLoad: 8
//	  personality:
//	    mbti: {type: ENFJ, percentages: {E: 70, I: 30, ...}}
//	student:
//	  id: s-1
//	  personality: {...}
type pairFixture struct {
	Teacher     profile.Teacher `yaml:"teacher"`
	Student     profile.Student `yaml:"student"`
	AverageLoad float64         `yaml:"averageLoad,omitempty"`
}

// ingestFixture is the file read by `matchctl ingest`.
type ingestFixture struct {
	Profiles []ingestEntry `yaml:"profiles"`
}

type ingestEntry struct {
	Kind        profile.OwnerKind           `yaml:"kind"`
	OwnerID     string                      `yaml:"ownerId"`
	Personality *profile.PersonalityProfile `yaml:"personality"`
}

var errEmptyFixture = errors.New("fixture is empty")

func loadPairFixture(path string) (*pairFixture, error) {
	var f pairFixture
	if err := decodeYAML(path, &f); err != nil {
		return nil, err
	}
	if f.Teacher.ID == "" || f.Student.ID == "" {
		return nil, fmt.Errorf("%s: teacher.id and student.id are required", path)
	}
	return &f, nil
}

func loadIngestFixture(path string) (*ingestFixture, error) {
	var f ingestFixture
	if err := decodeYAML(path, &f); err != nil {
		return nil, err
	}
	if len(f.Profiles) == 0 {
		return nil, fmt.Errorf("%s: %w", path, errEmptyFixture)
	}
	return &f, nil
}

// decodeYAML rejects unknown keys so that a misspelt section fails loudly
// instead of silently scoring as neutral.
func decodeYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fixture: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%s: %w", path, errEmptyFixture)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
