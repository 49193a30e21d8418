package semverx

import "testing"

func TestParseStringRoundTrip(t *testing.T) {
	cases := []string{
		"0.0.0",
		"1.2.3",
		"1.0.0-alpha",
		"1.0.0-alpha.1",
		"1.0.0-0.3.7",
		"1.0.0-x.7.z.92",
		"1.0.0+20130313144700",
		"1.0.0-beta+exp.sha.5114f85",
		"2.0.0",
		"10.20.30",
	}
	for _, s := range cases {
		t.Run(s, func(t *testing.T) {
			v, err := Parse(s)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", s, err)
			}
			if got := v.String(); got != s {
				t.Errorf("String() round-trip: got %q, want %q", got, s)
			}
		})
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"1",
		"1.2",
		"1.2.3.4",
		"01.2.3",
		"1.02.3",
		"1.2.03",
		"1.2.3-",
		"1.2.3+",
		"1.2.3-01",
		"v1.2.3",
	}
	for _, s := range cases {
		t.Run(s, func(t *testing.T) {
			if _, err := Parse(s); err == nil {
				t.Errorf("Parse(%q) succeeded, want error", s)
			}
		})
	}
}

func TestCompareOrdering(t *testing.T) {
	// semver.org §11.2 example chain, plus a two-digit-component pair that
	// would sort backwards under lexicographic string ordering.
	ordered := []string{
		"1.0.0-alpha",
		"1.0.0-alpha.1",
		"1.0.0-alpha.beta",
		"1.0.0-beta",
		"1.0.0-beta.2",
		"1.0.0-beta.11",
		"1.0.0-rc.1",
		"1.0.0",
		"1.9.0",
		"1.10.0",
		"2.0.0",
	}
	for i := 0; i < len(ordered)-1; i++ {
		a, b := MustParse(ordered[i]), MustParse(ordered[i+1])
		if !a.Less(b) {
			t.Errorf("expected %s < %s", ordered[i], ordered[i+1])
		}
		if b.Less(a) {
			t.Errorf("expected %s to not be < %s", ordered[i+1], ordered[i])
		}
	}
}

func TestEqualIgnoresMetadata(t *testing.T) {
	a := MustParse("1.2.3+build.1")
	b := MustParse("1.2.3+build.2")
	if !a.Equal(b) {
		t.Errorf("expected %s and %s to compare equal, differing only in metadata", a, b)
	}
}
