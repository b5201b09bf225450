package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/afterschool-matching/internal/domain/compatibility"
	"github.com/alem-hub/afterschool-matching/internal/domain/profile"
)

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

const newcomersPair = `
teacher:
  id: t-1
  currentLoad: 5
student:
  id: s-1
`

func TestScore_FixtureText(t *testing.T) {
	out, _, err := execute(t, "score", writeFixture(t, newcomersPair))
	require.NoError(t, err)

	assert.Contains(t, out, "t-1 x s-1: 57.5 (fair)")
	assert.Contains(t, out, "load 15.0")
}

func TestScore_FixtureJSON(t *testing.T) {
	out, _, err := execute(t, "score", "--json", "--average-load", "12", writeFixture(t, newcomersPair))
	require.NoError(t, err)

	var got struct {
		Overall     float64               `json:"overall"`
		AverageLoad float64               `json:"averageLoad"`
		Reasons     []string              `json:"reasons"`
		Quality     compatibility.Quality `json:"quality"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 57.5, got.Overall)
	assert.Equal(t, 12.0, got.AverageLoad)
	assert.Equal(t, compatibility.QualityFair, got.Quality)
	assert.Equal(t, []string{compatibility.ReasonLoadLight, compatibility.ReasonFallback}, got.Reasons)
}

func TestScore_FixtureIsSanitized(t *testing.T) {
	path := writeFixture(t, `
teacher:
  id: t-1
  currentLoad: -3
student:
  id: s-1
  personality:
    mbti:
      type: XXXXX
      percentages: {E: 120, I: 0, S: 50, N: 50, T: 50, F: 50, J: 50, P: 50}
`)
	_, warn, err := execute(t, "score", path)
	require.NoError(t, err)

	assert.Contains(t, warn, "clamped from 120 to 100")
	assert.Contains(t, warn, "student mbti.type dropped")
	assert.Contains(t, warn, "teacher currentLoad clamped from -3 to 0")
}

func TestScore_RejectsBadInput(t *testing.T) {
	_, _, err := execute(t, "score")
	assert.Error(t, err)

	_, _, err = execute(t, "score", writeFixture(t, "teacher:\n  id: t-1\n"))
	assert.ErrorContains(t, err, "student.id")

	_, _, err = execute(t, "score", writeFixture(t, newcomersPair+"extra: true\n"))
	assert.ErrorContains(t, err, "extra")

	_, _, err = execute(t, "score", writeFixture(t, "  \n"))
	assert.ErrorIs(t, err, errEmptyFixture)
}

func TestLoadIngestFixture(t *testing.T) {
	f, err := loadIngestFixture(writeFixture(t, `
profiles:
  - kind: teacher
    ownerId: t-9
    personality:
      nameGrids: {won: 11, hyung: 23, yi: 15, jeong: 31}
  - kind: student
    ownerId: s-4
`))
	require.NoError(t, err)
	require.Len(t, f.Profiles, 2)

	assert.Equal(t, profile.OwnerTeacher, f.Profiles[0].Kind)
	assert.Equal(t, "t-9", f.Profiles[0].OwnerID)
	assert.Equal(t, &profile.NameGrids{Won: 11, Hyung: 23, Yi: 15, Jeong: 31}, f.Profiles[0].Personality.NameGrids)
	assert.Nil(t, f.Profiles[1].Personality)

	_, err = loadIngestFixture(writeFixture(t, "profiles: []\n"))
	assert.ErrorIs(t, err, errEmptyFixture)
}

func TestParseStatus(t *testing.T) {
	st, err := parseStatus(" applied ")
	require.NoError(t, err)
	assert.Equal(t, "APPLIED", string(st))

	_, err = parseStatus("done")
	assert.Error(t, err)
}

func TestPropose_RequiresScope(t *testing.T) {
	_, _, err := execute(t, "propose")
	assert.Error(t, err)

	_, _, err = execute(t, "propose", "--team", "a", "--students", "s-1")
	assert.Error(t, err)
}
