package field

import (
	"strconv"
	"strings"
	"testing"
)

// ============================================================================
// ConvertNumeric
// ============================================================================

func TestConvertNumeric_Scaled(t *testing.T) {
	t.Parallel()

	cases := []struct {
		val    string
		digits int
		scale  int
		want   string
	}{
		{"1234.5", 7, 2, "0123450"},
		{"1234.56", 7, 2, "0123456"},
		{"0.5", 5, 3, "00500"},
		{"12", 4, 0, "0012"},
		{"", 3, 0, "000"},
		{"987654", 6, 0, "987654"},
		{"1.23456", 6, 4, "012345"},
	}
	for _, c := range cases {
		got := ConvertNumeric(c.val, c.digits, c.scale)
		if got != c.want {
			t.Errorf("ConvertNumeric(%q,%d,%d) = %q, want %q", c.val, c.digits, c.scale, got, c.want)
		}
	}
}

func TestConvertNumeric_RoundTrip(t *testing.T) {
	t.Parallel()

	// For every (digits, scale, v) with v < 10^(digits-scale), converting
	// and re-parsing the digit string yields v exactly.
	for digits := 1; digits <= 9; digits++ {
		for scale := 0; scale < digits; scale++ {
			limit := int64(1)
			for i := 0; i < digits-scale; i++ {
				limit *= 10
			}
			for _, v := range []int64{0, 1, 7, limit / 2, limit - 1} {
				s := ConvertNumeric(strconv.FormatInt(v, 10), digits, scale)
				if len(s) != digits {
					t.Fatalf("digits=%d scale=%d v=%d: length %d", digits, scale, v, len(s))
				}
				got, err := strconv.ParseInt(s[:digits-scale], 10, 64)
				if err != nil {
					t.Fatalf("reparse %q: %v", s, err)
				}
				if got != v {
					t.Errorf("digits=%d scale=%d: %d -> %q -> %d", digits, scale, v, s, got)
				}
				if frac := s[digits-scale:]; strings.Trim(frac, "0") != "" {
					t.Errorf("integer value %d grew fraction %q", v, frac)
				}
			}
		}
	}
}

// ============================================================================
// Packed decimal
// ============================================================================

func TestPacked_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, v := range []int64{0, 1, -1, 42, 1234567, -9999999, 20260801} {
		data := make([]byte, 4)
		PutPacked(v, data)
		if got := GetPacked(data); got != v {
			t.Errorf("packed round trip %d -> % x -> %d", v, data, got)
		}
	}
}

func TestPacked_SignNibble(t *testing.T) {
	t.Parallel()

	data := make([]byte, 4)
	PutPacked(123, data)
	if data[3]&0x0F != 0x0C {
		t.Errorf("positive sign nibble = %x, want C", data[3]&0x0F)
	}
	PutPacked(-123, data)
	if data[3]&0x0F != 0x0D {
		t.Errorf("negative sign nibble = %x, want D", data[3]&0x0F)
	}
}

// ============================================================================
// Binary encodings
// ============================================================================

func TestBinary_BigEndian(t *testing.T) {
	t.Parallel()

	data := make([]byte, 4)
	PutBinary(0x01020304, data)
	if data[0] != 1 || data[1] != 2 || data[2] != 3 || data[3] != 4 {
		t.Errorf("big-endian layout = % x", data)
	}
	if got := GetBinary(data); got != 0x01020304 {
		t.Errorf("GetBinary = %x", got)
	}
}

func TestBinary_NativeRoundTrip(t *testing.T) {
	t.Parallel()

	for _, size := range []int{2, 4, 8} {
		data := make([]byte, size)
		PutBinaryNative(-77, data)
		if got := GetBinaryNative(data); got != -77 {
			t.Errorf("size %d: native round trip got %d", size, got)
		}
	}
}

// ============================================================================
// Field-level conversion
// ============================================================================

func TestSetFromText_ZonedScale(t *testing.T) {
	t.Parallel()

	// A 7-digit zoned field with scale 2 receiving "1234.5" holds the
	// digit string 0123450, i.e. 1234.50.
	qty := NewZoned(7, 2)
	if err := SetFromText(qty, "1234.5"); err != nil {
		t.Fatal(err)
	}
	if string(qty.Data) != "0123450" {
		t.Errorf("zoned data = %q, want %q", qty.Data, "0123450")
	}
}

func TestSetFromText_Varchar(t *testing.T) {
	t.Parallel()

	f := &Field{Kind: Group, Size: 10, Data: make([]byte, 10)}
	if err := SetFromText(f, "HELLO"); err != nil {
		t.Fatal(err)
	}
	if f.Data[0] != 0 || f.Data[1] != 5 {
		t.Errorf("length prefix = % x", f.Data[:2])
	}
	if got := Varchar(f); got != "HELLO" {
		t.Errorf("payload = %q", got)
	}
}

func TestSetFromText_VarcharTruncates(t *testing.T) {
	t.Parallel()

	f := &Field{Kind: Group, Size: 6, Data: make([]byte, 6)}
	if err := SetFromText(f, "ABCDEFGH"); err != nil {
		t.Fatal(err)
	}
	if got := Varchar(f); got != "ABCD" {
		t.Errorf("payload = %q, want ABCD", got)
	}
}

func TestSetNumeric_AllKinds(t *testing.T) {
	t.Parallel()

	z := NewZoned(5, 0)
	SetNumeric(42, z)
	if string(z.Data) != "00042" {
		t.Errorf("zoned = %q", z.Data)
	}

	p := NewPacked(4, 7, 0)
	SetNumeric(42, p)
	if GetNumeric(p) != 42 {
		t.Errorf("packed = %d", GetNumeric(p))
	}

	b := NewBinary(4)
	SetNumeric(42, b)
	if GetNumeric(b) != 42 {
		t.Errorf("binary = %d", GetNumeric(b))
	}

	n := &Field{Kind: BinaryNative, Size: 4, Data: make([]byte, 4)}
	SetNumeric(-42, n)
	if GetNumeric(n) != -42 {
		t.Errorf("native = %d", GetNumeric(n))
	}
}

func TestDisplayInt(t *testing.T) {
	t.Parallel()

	b := NewBinary(4)
	SetNumeric(1024, b)
	if b.DisplayInt() != 1024 {
		t.Errorf("DisplayInt = %d", b.DisplayInt())
	}

	a := Alnum([]byte("128 "))
	if a.DisplayInt() != 128 {
		t.Errorf("alnum DisplayInt = %d", a.DisplayInt())
	}
}

// ============================================================================
// Escaping
// ============================================================================

func TestEscapeText(t *testing.T) {
	t.Parallel()

	got := EscapeText([]byte{'A', 0x00, 'B'})
	if got != "A\\0B" {
		t.Errorf("NUL escape = %q", got)
	}

	got = EscapeText([]byte{0xE4})
	if len(got) != 2 || got[0] != 0xC3 || got[1] != 0xA4 {
		t.Errorf("extended-ASCII escape = % x", []byte(got))
	}
}
