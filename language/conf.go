package language

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/google/shlex"
)

type confFile struct {
	Languages map[string]confEntry `yaml:"languages"`
}

type confEntry struct {
	SourceExt string `yaml:"sourceExt"`
	Image     string `yaml:"image"`
	Compile   string `yaml:"compile"`
	Run       string `yaml:"run"`

	StderrFails *bool `yaml:"stderrFails"`
}

// LoadFile reads a yaml override of the default table, e.g.
//
//	languages:
//	  c:
//	    compile: gcc -O2 -o {binary} {source}
//	    run: ./{binary}
//	    stderrFails: true
//
// Missing fields keep their default value.
func LoadFile(path string) (*Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("language: read %s: %w", path, err)
	}
	return Load(b)
}

// Load parses yaml content into a table seeded with the defaults
func Load(b []byte) (*Table, error) {
	var cf confFile
	if err := yaml.Unmarshal(b, &cf); err != nil {
		return nil, fmt.Errorf("language: parse: %w", err)
	}
	t := Default()
	for name, e := range cf.Languages {
		l, err := Parse(name)
		if err != nil {
			return nil, err
		}
		p, _ := t.Get(l)
		if e.SourceExt != "" {
			p.SourceExt = e.SourceExt
		}
		if e.Image != "" {
			p.Image = e.Image
		}
		if e.Compile != "" {
			if p.CompileArgs, err = shlex.Split(e.Compile); err != nil {
				return nil, fmt.Errorf("language: %s compile command: %w", l, err)
			}
		}
		if e.Run != "" {
			if p.RunArgs, err = shlex.Split(e.Run); err != nil {
				return nil, fmt.Errorf("language: %s run command: %w", l, err)
			}
		}
		if e.StderrFails != nil {
			p.StderrFails = *e.StderrFails
		}
		if len(p.RunArgs) == 0 {
			return nil, fmt.Errorf("language: %s has no run command", l)
		}
		t.Set(l, p)
	}
	return t, nil
}
