package codec

import "testing"

func TestDateStringRoundTrip(t *testing.T) {
	d := Date{Day: 5, Month: 11, Year: 2026}
	s := d.String()
	if s != "05112026" {
		t.Fatalf("String: got %q, want %q", s, "05112026")
	}
	got, err := ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if !got.Equal(d) {
		t.Errorf("ParseDate: got %+v, want %+v", got, d)
	}
}

func TestParseDateInvalid(t *testing.T) {
	cases := []string{"", "123", "00002026", "31132026", "not8char"}
	for _, s := range cases {
		if _, err := ParseDate(s); err == nil {
			t.Errorf("ParseDate(%q): expected error", s)
		}
	}
}

func TestDateAddDaysAndSub(t *testing.T) {
	d := Date{Day: 28, Month: 2, Year: 2026}
	after := d.AddDays(3)
	want := Date{Day: 3, Month: 3, Year: 2026}
	if !after.Equal(want) {
		t.Fatalf("AddDays: got %+v, want %+v", after, want)
	}
	if after.Sub(d) != 3 {
		t.Errorf("Sub: got %d, want 3", after.Sub(d))
	}
}

func TestDateBeforeAfter(t *testing.T) {
	a := Date{Day: 1, Month: 1, Year: 2026}
	b := Date{Day: 2, Month: 1, Year: 2026}
	if !a.Before(b) || b.Before(a) {
		t.Fatal("Before: ordering wrong")
	}
	if !b.After(a) || a.After(b) {
		t.Fatal("After: ordering wrong")
	}
}

func TestDateSameMonth(t *testing.T) {
	a := Date{Day: 1, Month: 6, Year: 2026}
	b := Date{Day: 30, Month: 6, Year: 2026}
	c := Date{Day: 1, Month: 7, Year: 2026}
	if !a.SameMonth(b) {
		t.Error("expected same month")
	}
	if a.SameMonth(c) {
		t.Error("expected different month")
	}
}
