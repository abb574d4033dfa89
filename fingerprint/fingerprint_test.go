package fingerprint

import (
	"errors"
	"testing"
)

func TestSumDeterministic(t *testing.T) {
	a := Sum(DomainItem, []byte("path"), []byte{1, 2, 3})
	b := Sum(DomainItem, []byte("path"), []byte{1, 2, 3})
	if a != b {
		t.Errorf("Sum not deterministic: %s != %s", a, b)
	}
	if a.IsZero() {
		t.Error("Sum returned the zero fingerprint")
	}
}

func TestSumPartBoundaries(t *testing.T) {
	// Length prefixes keep ("ab","c") and ("a","bc") apart.
	a := Sum(DomainItem, []byte("ab"), []byte("c"))
	b := Sum(DomainItem, []byte("a"), []byte("bc"))
	if a == b {
		t.Error("different part splits produced the same fingerprint")
	}
}

func TestSumDomainSeparation(t *testing.T) {
	data := []byte("font bytes")
	if Sum(DomainItem, data) == Sum(DomainBlob, data) {
		t.Error("domains not separated")
	}
	if OfBlob(data) != Sum(DomainBlob, data) {
		t.Error("OfBlob differs from Sum(DomainBlob, ...)")
	}
}

func TestParseRoundTrip(t *testing.T) {
	fp := Sum(DomainItem, []byte("x"))
	got, err := Parse(fp.String())
	if err != nil {
		t.Fatalf("Parse(%q) = %v", fp.String(), err)
	}
	if got != fp {
		t.Errorf("Parse = %s, want %s", got, fp)
	}
	if len(fp.Short()) != 8 {
		t.Errorf("Short() = %q, want 8 hex digits", fp.Short())
	}
}

func TestParseInvalid(t *testing.T) {
	for _, s := range []string{"", "abc", "zz000000000000000000000000000000"} {
		if _, err := Parse(s); !errors.Is(err, ErrInvalid) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalid", s, err)
		}
	}
}

func TestCompare(t *testing.T) {
	lo := Fingerprint{0x00, 0x01}
	hi := Fingerprint{0x00, 0x02}
	if lo.Compare(hi) >= 0 || hi.Compare(lo) <= 0 || lo.Compare(lo) != 0 {
		t.Error("Compare ordering wrong")
	}
}

func TestTextMarshal(t *testing.T) {
	fp := Sum(DomainItem, []byte("y"))
	text, err := fp.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	var back Fingerprint
	if err := back.UnmarshalText(text); err != nil {
		t.Fatal(err)
	}
	if back != fp {
		t.Errorf("UnmarshalText = %s, want %s", back, fp)
	}
}
