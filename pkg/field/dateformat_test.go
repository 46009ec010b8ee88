package field

import "testing"

func TestAdjustToDB_Reshapes(t *testing.T) {
	t.Parallel()

	df := DefaultDateFormats
	// Display: YYYY-MM-dd-hh.mm.ss.uuuuu
	in := "2026-08-01-14.30.59.12345"
	got := df.AdjustToDB(in)
	// DB: dd-MM-YYYY hh:mm:ss.uuu
	want := "01-08-2026 14:30:59.123"
	if got[:len(want)] != want {
		t.Errorf("AdjustToDB(%q) = %q, want prefix %q", in, got, want)
	}
}

func TestAdjustToDB_SeparatorEquivalences(t *testing.T) {
	t.Parallel()

	df := DefaultDateFormats
	// Position 10 may carry a blank for '-', positions 13 and 16 a colon
	// for '.'.
	in := "2026-08-01 14:30:59.12345"
	got := df.AdjustToDB(in)
	want := "01-08-2026 14:30:59.123"
	if got[:len(want)] != want {
		t.Errorf("AdjustToDB(%q) = %q, want prefix %q", in, got, want)
	}
}

func TestAdjustToDB_PassesThroughNonDates(t *testing.T) {
	t.Parallel()

	df := DefaultDateFormats
	for _, in := range []string{
		"HELLO WORLD",
		"2026/08/01 14:30:59.123",
		"short",
	} {
		if got := df.AdjustToDB(in); got != in {
			t.Errorf("AdjustToDB(%q) = %q, want unchanged", in, got)
		}
	}
}
