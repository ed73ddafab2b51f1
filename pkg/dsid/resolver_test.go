package dsid

import (
	"regexp"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func validIdentity() Identity {
	return Identity{
		Facility:      "HZB",
		Investigation: "18201234-ST",
		Visit:         "1.1-P",
		Dataset:       "sample_01.raw",
	}
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(DefaultGrammar())

	var tests = []struct {
		name             string
		id               Identity
		errExpected      bool
		locationExpected Location
	}{
		{
			name:             "simple identity",
			id:               validIdentity(),
			locationExpected: "HZB/182/18201234-ST/1.1-P/data/sample_01.raw",
		},
		{
			name: "slashes in investigation and visit are substituted",
			id: Identity{
				Facility:      "HZB",
				Investigation: "19101111-ST/PP",
				Visit:         "2.0-NP/SP",
				Dataset:       "ds1",
			},
			locationExpected: "HZB/191/19101111-ST_PP/2.0-NP_SP/data/ds1",
		},
		{
			name:        "slash in facility is rejected",
			id:          Identity{Facility: "HZB/x", Investigation: "18201234-ST", Visit: "1.1-P", Dataset: "ds1"},
			errExpected: true,
		},
		{
			name:        "slash in dataset is rejected",
			id:          Identity{Facility: "HZB", Investigation: "18201234-ST", Visit: "1.1-P", Dataset: "../ds1"},
			errExpected: true,
		},
		{
			name:        "empty dataset",
			id:          Identity{Facility: "HZB", Investigation: "18201234-ST", Visit: "1.1-P", Dataset: ""},
			errExpected: true,
		},
		{
			name:        "leading punctuation in facility",
			id:          Identity{Facility: ".HZB", Investigation: "18201234-ST", Visit: "1.1-P", Dataset: "ds1"},
			errExpected: true,
		},
		{
			name:        "leading punctuation in dataset",
			id:          Identity{Facility: "HZB", Investigation: "18201234-ST", Visit: "1.1-P", Dataset: "-ds1"},
			errExpected: true,
		},
		{
			name:        "bad investigation",
			id:          Identity{Facility: "HZB", Investigation: "1820-ST", Visit: "1.1-P", Dataset: "ds1"},
			errExpected: true,
		},
		{
			name:        "bad visit",
			id:          Identity{Facility: "HZB", Investigation: "18201234-ST", Visit: "../1.1-P", Dataset: "ds1"},
			errExpected: true,
		},
		{
			name:        "empty visit",
			id:          Identity{Facility: "HZB", Investigation: "18201234-ST", Visit: "", Dataset: "ds1"},
			errExpected: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			loc, err := r.Resolve(test.id)
			if test.errExpected {
				require.Error(t, err)
				require.True(t, errors.Is(err, ErrInvalidName), "expected ErrInvalidName, got %s", err)
				require.Equal(t, Location(""), loc)
				return
			}

			require.NoError(t, err)
			require.Equal(t, test.locationExpected, loc)
		})
	}
}

func TestResolver_ResolveIsDeterministicAndInjective(t *testing.T) {
	r := NewResolver(DefaultGrammar())

	var identities []Identity
	for _, facility := range []string{"HZB", "hzb", "BESSY"} {
		for _, inv := range []string{"18201234-ST", "18201234-ST/PP", "18301234-ST", "18201234-STPP"} {
			for _, visit := range []string{"1.1-P", "1.1-P/Q", "1.1-PQ", "11.1-P"} {
				for _, ds := range []string{"a", "A", "a.b", "a-b"} {
					identities = append(identities, Identity{facility, inv, visit, ds})
				}
			}
		}
	}

	seen := make(map[Location]Identity)
	for _, id := range identities {
		first, err := r.Resolve(id)
		require.NoError(t, err)
		second, err := r.Resolve(id)
		require.NoError(t, err)
		require.Equal(t, first, second)

		other, ok := seen[first]
		require.False(t, ok, "%+v and %+v both resolve to %s", id, other, first)
		seen[first] = id
	}
}

func TestResolver_SubstituteCharacterRefused(t *testing.T) {
	g := DefaultGrammar()
	g.Investigation = regexp.MustCompile(`^(\d{3})[0-9A-Z_/-]+$`)
	r := NewResolver(g)

	_, err := r.Resolve(Identity{Facility: "HZB", Investigation: "182A/B", Visit: "1.1-P", Dataset: "ds"})
	require.NoError(t, err)

	_, err = r.Resolve(Identity{Facility: "HZB", Investigation: "182A_B", Visit: "1.1-P", Dataset: "ds"})
	require.True(t, errors.Is(err, ErrInvalidName))
}

func TestResolver_PerFacilityGrammar(t *testing.T) {
	g := DefaultGrammar()
	g.Investigations["gate1"] = regexp.MustCompile(`^(\d{3})\d{5}-[A-Z]+-\d+\.\d+-[A-Z]+$`)
	g.Investigations["misc"] = regexp.MustCompile(`^[A-Z]+-\d+$`)
	r := NewResolver(g)

	loc, err := r.Resolve(Identity{Facility: "gate1", Investigation: "17200001-ST-1.1-P", Visit: "1.1-P", Dataset: "ds"})
	require.NoError(t, err)
	require.Equal(t, Location("gate1/172/17200001-ST-1.1-P/1.1-P/data/ds"), loc)

	loc, err = r.Resolve(Identity{Facility: "misc", Investigation: "ABC-12", Visit: "1.1-P", Dataset: "ds"})
	require.NoError(t, err)
	require.Equal(t, Location("misc/000/ABC-12/1.1-P/data/ds"), loc)

	// facilities without an entry keep the default pattern
	_, err = r.Resolve(Identity{Facility: "other", Investigation: "ABC-12", Visit: "1.1-P", Dataset: "ds"})
	require.True(t, errors.Is(err, ErrInvalidName))
}

func TestIdentityFromPath(t *testing.T) {
	r := NewResolver(DefaultGrammar())
	id := Identity{Facility: "HZB", Investigation: "19101111-ST/PP", Visit: "2.0-NP/SP", Dataset: "ds1"}

	loc, err := r.Resolve(id)
	require.NoError(t, err)

	back, err := IdentityFromPath(loc.String())
	require.NoError(t, err)
	require.Equal(t, id, back)

	_, err = IdentityFromPath("HZB/191/19101111-ST_PP/2.0-NP_SP/data")
	require.True(t, errors.Is(err, ErrInvalidName))
}

func TestResolver_ParseLocation(t *testing.T) {
	r := NewResolver(DefaultGrammar())

	var tests = []struct {
		name         string
		location     string
		errExpected  bool
		nameExpected string
	}{
		{name: "file in dataset", location: "HZB/182/18201234-ST/1.1-P/data/sample_01.raw/f1.dat", nameExpected: "f1.dat"},
		{name: "absolute", location: "/HZB/182/18201234-ST/1.1-P/data/sample_01.raw/f1.dat", errExpected: true},
		{name: "not clean", location: "HZB/182/18201234-ST/1.1-P/data/x/../sample_01.raw/f1.dat", errExpected: true},
		{name: "too short", location: "HZB/182/18201234-ST/1.1-P/data/f1.dat", errExpected: true},
		{name: "wrong cycle", location: "HZB/999/18201234-ST/1.1-P/data/sample_01.raw/f1.dat", errExpected: true},
		{name: "wrong data element", location: "HZB/182/18201234-ST/1.1-P/raw/sample_01.raw/f1.dat", errExpected: true},
		{name: "bad file name", location: "HZB/182/18201234-ST/1.1-P/data/sample_01.raw/.f1", errExpected: true},
		{name: "empty", location: "", errExpected: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			id, name, err := r.ParseLocation(test.location)
			if test.errExpected {
				require.True(t, errors.Is(err, ErrInvalidName), "expected ErrInvalidName, got %v", err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, validIdentity(), id)
			require.Equal(t, test.nameExpected, name)
		})
	}
}
