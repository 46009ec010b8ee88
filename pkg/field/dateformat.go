package field

// DateFormats pairs the display-form date-time template artifacts produce
// with the template the database expects. Templates use letter classes for
// digit positions (Y, M, d, h, m, s, u) and the separators '-', ' ', ':'
// and '.'.
type DateFormats struct {
	Display string
	DB      string
}

// DefaultDateFormats matches the stock monitor configuration.
var DefaultDateFormats = DateFormats{
	Display: "YYYY-MM-dd-hh.mm.ss.uuuuu",
	DB:      "dd-MM-YYYY hh:mm:ss.uuu",
}

func isSep(c byte) bool {
	return c == '-' || c == ' ' || c == ':' || c == '.'
}

// AdjustToDB detects whether s matches the display template (digits at letter
// positions, separators matching, with the documented equivalences at
// positions 10, 13 and 16) and, if so, reshapes it into the DB template by
// copying each digit run to the DB positions sharing its letter class.
// Non-matching input is returned unchanged.
func (df DateFormats) AdjustToDB(s string) string {
	disp := df.Display
	if len(s) < len(disp) {
		return s
	}
	for i := 0; i < len(disp); i++ {
		if !isSep(disp[i]) {
			if s[i] < '0' || s[i] > '9' {
				return s
			}
			continue
		}
		if disp[i] == s[i] {
			continue
		}
		switch {
		case i == 10 && disp[i] == '-' && s[i] == ' ':
		case i == 13 && disp[i] == '.' && s[i] == ':':
		case i == 16 && disp[i] == '.' && s[i] == ':':
		default:
			return s
		}
	}

	out := make([]byte, len(s))
	for i := range out {
		out[i] = ' '
	}
	var lastClass byte
	pos := 0
	for i := 0; i < len(df.DB); i++ {
		c := df.DB[i]
		if isSep(c) {
			out[i] = c
			continue
		}
		if c != lastClass {
			j := 0
			for j < len(disp) && disp[j] != c {
				j++
			}
			if j == len(disp) {
				return string(out)
			}
			pos = j
			lastClass = c
		}
		out[i] = s[pos]
		pos++
	}
	return string(out)
}
