package repository

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/rollcall/internal/domain/model"
)

type rosterEntry struct {
	ID         string `koanf:"id"`
	RollNumber string `koanf:"roll_number"`
	Name       string `koanf:"name"`
	Section    string `koanf:"section"`
}

// LoadRoster reads a YAML file with a top-level "students" list.
//
//	students:
//	  - id: s-1
//	    roll_number: 21CS001
//	    name: Asha
//	    section: CSE-A
func LoadRoster(path string) ([]model.Student, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRoster, path, err)
	}
	var entries []rosterEntry
	if err := k.UnmarshalWithConf("students", &entries, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRoster, path, err)
	}

	out := make([]model.Student, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		st, err := normalizeStudent(model.Student{ID: e.ID, RollNumber: e.RollNumber, Name: e.Name, Section: e.Section})
		if err != nil {
			return nil, fmt.Errorf("%w: %s: entry %d: %v", ErrInvalidRoster, path, i, err)
		}
		if _, dup := seen[st.RollNumber]; dup {
			return nil, fmt.Errorf("%w: %s: entry %d: duplicate roll %s", ErrInvalidRoster, path, i, st.RollNumber)
		}
		seen[st.RollNumber] = struct{}{}
		out = append(out, st)
	}
	return out, nil
}
