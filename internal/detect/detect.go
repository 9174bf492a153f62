// Package detect classifies a directory by the project marker files it
// contains.
package detect

import (
	"os"
	"path/filepath"
)

// Generic is returned when no marker matches.
const Generic = "generic"

type rule struct {
	kind    string
	markers []string
}

// rules are checked in order; the first rule with a present marker wins.
var rules = []rule{
	{"nodejs", []string{"package.json"}},
	{"python", []string{"requirements.txt", "setup.py", "pyproject.toml"}},
	{"java", []string{"pom.xml", "build.gradle"}},
	{"go", []string{"go.mod"}},
	{"rust", []string{"Cargo.toml"}},
	{"git", []string{".git"}},
}

// Classify returns the project type of the directory at path.
func Classify(path string) string {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return Generic
	}
	for _, r := range rules {
		for _, m := range r.markers {
			if _, err := os.Stat(filepath.Join(path, m)); err == nil {
				return r.kind
			}
		}
	}
	return Generic
}
