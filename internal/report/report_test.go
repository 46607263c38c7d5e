package report

import (
	"bytes"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReport = `{
  "bundle": {"name": "demo"},
  "results": [
    {
      "provider": "aws",
      "tests": [
        {"name": "charm-proof", "suite": "demo", "duration": 1.5, "result": "PASS", "output": "all good"},
        {"name": "deploy", "suite": "demo", "duration": 300, "result": "FAIL", "output": "timeout <boom>"}
      ]
    },
    {
      "provider": "gce",
      "tests": [
        {"name": "deploy", "suite": "demo", "duration": 12, "result": "INFRA", "output": "no quota"}
      ]
    }
  ]
}`

func writeReport(t *testing.T, content string) string {
	t.Helper()
	path := Path(t.TempDir(), "demo", "12")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/srv/artifacts", "demo", "12", "report.json"), Path("/srv/artifacts", "demo", "12"))
}

func TestReadAndPassed(t *testing.T) {
	r, err := Read(writeReport(t, sampleReport))
	require.NoError(t, err)
	require.Len(t, r.Results, 2)
	assert.Equal(t, "aws", r.Results[0].Provider)
	assert.Equal(t, "1.5", r.Results[0].Tests[0].Duration.String())
	assert.False(t, r.Passed())

	r.Results = r.Results[:1]
	r.Results[0].Tests = r.Results[0].Tests[:1]
	assert.True(t, r.Passed())
}

func TestReadErrors(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read report")

	_, err = Read(writeReport(t, "{not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse report")
}

func TestWriteJUnit(t *testing.T) {
	r, err := Read(writeReport(t, sampleReport))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteJUnit(&buf, r))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "<?xml"))
	assert.Contains(t, out, `<testsuite name="aws" tests="2">`)
	assert.Contains(t, out, `<testcase name="charm-proof" classname="demo" time="1.5">`)
	assert.Contains(t, out, `<system-out>all good</system-out>`)
	assert.Contains(t, out, `<error message="timeout &lt;boom&gt;">timeout &lt;boom&gt;</error>`)
	assert.Contains(t, out, `<failure message="no quota">no quota</failure>`)

	var decoded junitSuites
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Suites, 2)
	assert.Equal(t, 1, decoded.Suites[1].Tests)
	assert.Nil(t, decoded.Suites[0].Cases[0].Error)
	require.NotNil(t, decoded.Suites[0].Cases[1].Error)
}

func TestWriteJUnitEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJUnit(&buf, Report{}))
	assert.Contains(t, buf.String(), "<testsuites></testsuites>")
}
