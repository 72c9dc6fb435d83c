package config

import (
	"fmt"
	"sort"
)

// scanCounts holds the number of acquired volumes per run for each
// supported naturalistic-listening protocol.
var scanCounts = map[string]map[int]int{
	"english": {
		1: 282, 2: 298, 3: 340, 4: 303, 5: 265,
		6: 343, 7: 325, 8: 292, 9: 368,
	},
	"french": {
		1: 309, 2: 326, 3: 354, 4: 315, 5: 293,
		6: 378, 7: 332, 8: 294, 9: 336,
	},
}

// subjectIDs lists the subjects acquired for each language.
var subjectIDs = map[string][]int{
	"english": {
		57, 58, 59, 61, 62, 63, 64, 65, 66, 67, 68, 69, 70,
		72, 73, 74, 75, 76, 77, 78, 79, 80, 81, 82, 83, 84,
		86, 87, 88, 89, 91, 92, 93, 94, 95, 96, 97, 98, 99,
		100, 101, 103, 104, 105, 106, 108, 109, 110, 113, 114, 115,
	},
	"french": {
		1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15,
		16, 17, 18, 19, 20, 22, 23, 24, 25, 26, 27, 29, 30,
	},
}

// NScans returns a copy of the per-run scan counts for a language.
// An unknown language is a configuration error.
func NScans(language string) (map[int]int, error) {
	table, ok := scanCounts[language]
	if !ok {
		return nil, fmt.Errorf("language %q is not known (known: %v)", language, knownLanguages())
	}
	out := make(map[int]int, len(table))
	for run, n := range table {
		out[run] = n
	}
	return out, nil
}

// PossibleSubjectIDs returns the subject ids acquired for a language.
func PossibleSubjectIDs(language string) ([]int, error) {
	ids, ok := subjectIDs[language]
	if !ok {
		return nil, fmt.Errorf("language %q is not known (known: %v)", language, knownLanguages())
	}
	out := make([]int, len(ids))
	copy(out, ids)
	return out, nil
}

// SubjectName formats a subject id as its zero-padded directory name,
// sub-007 or sub-057.
func SubjectName(id int) string {
	return fmt.Sprintf("sub-%03d", id)
}

func knownLanguages() []string {
	names := make([]string, 0, len(scanCounts))
	for name := range scanCounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
