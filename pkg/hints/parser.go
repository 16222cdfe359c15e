package hints

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Markers delimiting the hints section in a probe log.
const (
	StartMarker = "<RUN_HINTS>"
	EndMarker   = "</RUN_HINTS>"
)

// ParseError is the distinguished failure of the hints parser. Autotune
// treats it as "no hints": the job keeps its untuned configuration.
type ParseError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hints: %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("hints: %s: %s", e.Path, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parser reads the RUN_HINTS section out of a probe log artifact.
type Parser struct{}

// hintsDoc is the YAML body between the markers.
type hintsDoc struct {
	Header         Header `yaml:"header"`
	Configurations []Conf `yaml:"configurations"`
}

// Parse extracts the single RUN_HINTS section from the artifact at path.
// Missing markers, an empty section, or malformed YAML are a *ParseError.
// Parsing the same artifact twice yields sets with identical contents.
func (Parser) Parse(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Reason: "cannot read probe log", Err: err}
	}

	body, err := section(path, string(data))
	if err != nil {
		return nil, err
	}

	var doc hintsDoc
	if err := yaml.Unmarshal([]byte(body), &doc); err != nil {
		return nil, &ParseError{Path: path, Reason: "malformed hints section", Err: err}
	}

	confs := make([]Conf, len(doc.Configurations))
	for i, c := range doc.Configurations {
		confs[i] = withDefaults(c)
	}

	return NewSet(doc.Header, confs), nil
}

func section(path, text string) (string, error) {
	lines := strings.Split(text, "\n")

	start, end := -1, -1
	for i, line := range lines {
		if strings.Contains(line, StartMarker) {
			start = i
		} else if strings.Contains(line, EndMarker) {
			end = i
			break
		}
	}

	if start < 0 || end < 0 {
		return "", &ParseError{Path: path, Reason: "no RUN_HINTS section found"}
	}
	if end-start <= 1 {
		return "", &ParseError{Path: path, Reason: "RUN_HINTS section is empty"}
	}

	return strings.Join(lines[start+1:end], "\n"), nil
}

// withDefaults fills the optional fields on a parsed configuration:
// omp_ncpus defaults to 1, mem_per_cpu to 0, vars to an empty map.
func withDefaults(c Conf) Conf {
	if c.OmpThreads == 0 {
		c.OmpThreads = 1
	}
	if c.Vars == nil {
		c.Vars = map[string]interface{}{}
	}
	return c
}
