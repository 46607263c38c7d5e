// Package report converts a cloud-weather-report report.json into JUnit XML
// so the CI server can display per-provider results.
package report

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/conn-castle/bundlebuilder/internal/messages"
)

// FileName is the report written by a test run.
const FileName = "report.json"

// ResultPass marks a passing test; ResultFail an erroring one. Any other result is a failure.
const (
	ResultPass = "PASS"
	ResultFail = "FAIL"
)

// Report is the decoded report.json.
type Report struct {
	Results []Suite `json:"results"`
}

// Suite holds the tests run against one provider.
type Suite struct {
	Provider string `json:"provider"`
	Tests    []Test `json:"tests"`
}

// Test is one test outcome.
type Test struct {
	Name     string      `json:"name"`
	Suite    string      `json:"suite"`
	Duration json.Number `json:"duration"`
	Result   string      `json:"result"`
	Output   string      `json:"output"`
}

type junitSuites struct {
	XMLName xml.Name     `xml:"testsuites"`
	Suites  []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name  string      `xml:"name,attr"`
	Tests int         `xml:"tests,attr"`
	Cases []junitCase `xml:"testcase"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Error     *junitProblem `xml:"error"`
	Failure   *junitProblem `xml:"failure"`
	SystemOut *string       `xml:"system-out"`
}

type junitProblem struct {
	Message string `xml:"message,attr"`
	Body    string `xml:",chardata"`
}

// Path returns <resultsDir>/<artifact>/<buildID>/report.json.
func Path(resultsDir string, artifact string, buildID string) string {
	return filepath.Join(resultsDir, artifact, buildID, FileName)
}

// Read decodes the report at path.
func Read(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf(messages.ReportReadFmt, path, err)
	}
	var r Report
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&r); err != nil {
		return Report{}, fmt.Errorf(messages.ReportParseFmt, path, err)
	}
	return r, nil
}

// Passed reports whether every test in r passed.
func (r Report) Passed() bool {
	for _, s := range r.Results {
		for _, t := range s.Tests {
			if t.Result != ResultPass {
				return false
			}
		}
	}
	return true
}

// WriteJUnit writes r as indented JUnit XML. Passing tests carry their output
// in system-out; FAIL becomes an error element and anything else a failure.
func WriteJUnit(w io.Writer, r Report) error {
	doc := junitSuites{}
	for _, s := range r.Results {
		suite := junitSuite{Name: s.Provider, Tests: len(s.Tests)}
		for _, t := range s.Tests {
			tc := junitCase{Name: t.Name, ClassName: t.Suite, Time: t.Duration.String()}
			switch t.Result {
			case ResultPass:
				out := t.Output
				tc.SystemOut = &out
			case ResultFail:
				tc.Error = &junitProblem{Message: t.Output, Body: t.Output}
			default:
				tc.Failure = &junitProblem{Message: t.Output, Body: t.Output}
			}
			suite.Cases = append(suite.Cases, tc)
		}
		doc.Suites = append(doc.Suites, suite)
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf(messages.ReportEncodeFmt, err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf(messages.ReportEncodeFmt, err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf(messages.ReportEncodeFmt, err)
	}
	return nil
}
