package plan

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/pessimist/internal/catalog"
	"github.com/felixgeelhaar/pessimist/internal/requirement"
)

func versions(raw ...string) []requirement.Version {
	out := make([]requirement.Version, len(raw))
	for i, r := range raw {
		out[i] = requirement.MustParseVersion(r)
	}
	return out
}

func testCatalog() *catalog.Catalog {
	return catalog.MustNew(
		&catalog.Entry{Name: "a", Versions: versions("1", "2", "3")},
		&catalog.Entry{Name: "b", Versions: versions("5", "6")},
		&catalog.Entry{Name: "c", Kind: catalog.Fixed, Versions: versions("9.0")},
	)
}

func TestMaxAndMin(t *testing.T) {
	cat := testCatalog()
	g := NewGenerator(cat)

	maxPlan := g.Max()
	minPlan := g.Min()

	assert.Equal(t, "max", maxPlan.Title())
	assert.Equal(t, "min", minPlan.Title())
	assert.True(t, maxPlan.Fatal())
	assert.True(t, minPlan.Fatal())

	for _, e := range cat.Entries() {
		v, ok := maxPlan.Version(e.Name)
		require.True(t, ok)
		assert.True(t, v.Equal(e.Versions[len(e.Versions)-1]), "max pins the last candidate of %s", e.Name)

		v, ok = minPlan.Version(e.Name)
		require.True(t, ok)
		assert.True(t, v.Equal(e.Versions[0]), "min pins the first candidate of %s", e.Name)
	}

	assert.Equal(t, []string{"a==3", "b==6", "c==9.0"}, maxPlan.Requirements())
	assert.Equal(t, []string{"a==1", "b==5", "c==9.0"}, minPlan.Requirements())
	require.NoError(t, maxPlan.Validate(cat))
	require.NoError(t, minPlan.Validate(cat))
}

func TestIntermediate(t *testing.T) {
	cat := testCatalog()
	g := NewGenerator(cat)
	plans := g.Intermediate()

	want := 0
	for _, e := range cat.Entries() {
		want += len(e.Versions) - 1
	}
	require.Len(t, plans, want)

	var titles []string
	for _, p := range plans {
		titles = append(titles, p.Title())
		assert.False(t, p.Fatal())
		assert.Equal(t, Probe, p.Kind())
		require.NoError(t, p.Validate(cat))

		pin, ok := p.Probed()
		require.True(t, ok)
		e, _ := cat.Entry(pin.Name)
		assert.True(t, pin.Version.Less(e.Max()))
	}
	assert.Equal(t, []string{"a:2", "a:1", "b:5"}, titles)
}

func TestIntermediateVariesOneName(t *testing.T) {
	cat := testCatalog()
	g := NewGenerator(cat)
	maxPlan := g.Max()

	for _, p := range g.Intermediate() {
		differing := 0
		for _, name := range cat.Names() {
			got, _ := p.Version(name)
			base, _ := maxPlan.Version(name)
			if !got.Equal(base) {
				differing++
			}
		}
		assert.Equal(t, 1, differing, p.Title())
	}
}

func TestJoint(t *testing.T) {
	cat := testCatalog()
	g := NewGenerator(cat)

	joint := g.Joint(map[string]requirement.Version{
		"a":     requirement.MustParseVersion("2"),
		"ghost": requirement.MustParseVersion("1"),
	})
	assert.Equal(t, Joint, joint.Kind())
	assert.Equal(t, "min", joint.Title())
	assert.True(t, joint.Fatal())
	assert.Equal(t, []string{"a==2", "b==6", "c==9.0"}, joint.Requirements())
	_, ok := joint.Probed()
	assert.False(t, ok)
	require.NoError(t, joint.Validate(cat))
}

func TestSchedule(t *testing.T) {
	g := NewGenerator(testCatalog())

	fast := g.Schedule(true)
	require.Len(t, fast, 2)
	assert.Equal(t, Baseline, fast[0].Kind())
	assert.Equal(t, Floor, fast[1].Kind())

	thorough := g.Schedule(false)
	require.Len(t, thorough, 4)
	assert.Equal(t, Baseline, thorough[0].Kind())
	for _, p := range thorough[1:] {
		assert.Equal(t, Probe, p.Kind())
	}
}

func TestSingleCandidateCatalog(t *testing.T) {
	cat := catalog.MustNew(&catalog.Entry{Name: "only", Versions: versions("1.0")})
	g := NewGenerator(cat)
	assert.Empty(t, g.Intermediate())
	assert.Equal(t, g.Max().Requirements(), g.Min().Requirements())
}

func TestValidateRejects(t *testing.T) {
	cat := testCatalog()
	other := catalog.MustNew(
		&catalog.Entry{Name: "a", Versions: versions("1", "2", "3")},
		&catalog.Entry{Name: "b", Versions: versions("4", "5", "6")},
		&catalog.Entry{Name: "c", Versions: versions("9.0")},
	)
	g := NewGenerator(cat)

	// Same names, but b==4 is not a candidate of the original catalog.
	foreign := NewGenerator(other).Min()
	assert.Error(t, foreign.Validate(cat))

	// A min plan checked as if it were a baseline.
	shrunk := catalog.MustNew(&catalog.Entry{Name: "a", Versions: versions("1", "2", "3")})
	assert.Error(t, g.Max().Validate(shrunk), "dependency count mismatch")

	// A probe that lowers two names.
	twoLowered := newPlan(Probe, []Pin{
		{Name: "a", Version: requirement.MustParseVersion("1")},
		{Name: "b", Version: requirement.MustParseVersion("5")},
		{Name: "c", Version: requirement.MustParseVersion("9.0")},
	})
	twoLowered.probe = Pin{Name: "a", Version: requirement.MustParseVersion("1")}
	assert.Error(t, twoLowered.Validate(cat))

	assert.Error(t, ValidateAll([]*Plan{g.Max(), twoLowered}, cat))
	assert.NoError(t, ValidateAll(g.Schedule(false), cat))
}

func TestKindString(t *testing.T) {
	for _, k := range []Kind{Baseline, Floor, Probe, Joint} {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseKind("sideways")
	assert.Error(t, err)
}

func TestWritePlans(t *testing.T) {
	g := NewGenerator(testCatalog())

	var buf bytes.Buffer
	require.NoError(t, WritePlans(&buf, g.Schedule(false)))

	var docs []planDocument
	require.NoError(t, json.Unmarshal(buf.Bytes(), &docs))
	require.Len(t, docs, 4)
	assert.Equal(t, "baseline", docs[0].Kind)
	assert.True(t, docs[0].Fatal)
	assert.Nil(t, docs[0].Probe)
	assert.Equal(t, "a:2", docs[1].Title)
	require.NotNil(t, docs[1].Probe)
	assert.Equal(t, "2", docs[1].Probe.Version.String())
	assert.Len(t, docs[1].Pins, 3)
}

func TestSavePlans(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.json")
	require.NoError(t, SavePlans(path, NewGenerator(testCatalog()).Schedule(true)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"title": "min"`)

	assert.Error(t, SavePlans(filepath.Join(t.TempDir(), "missing", "plans.json"), nil))
}
