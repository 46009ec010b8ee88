package exec

import (
	"bytes"
	"os"
	"path/filepath"
)

// writeJSON emits the copybook JSON schema for a map: inside <mapset>.js in
// the configured directory, the first balanced-brace object following the
// map name substring. A missing file or map produces an empty JSON line;
// the client decides whether that matters.
func (t *Task) writeJSON(mapName, mapset string) {
	t.writeString("JSON=")
	defer t.writeString("\n")

	data, err := os.ReadFile(filepath.Join(t.mon.JSDir, mapset+".js"))
	if err != nil {
		t.log.Warn("copybook json not found", "mapset", mapset, "error", err)
		return
	}
	i := bytes.Index(data, []byte(mapName))
	if i < 0 {
		return
	}
	rest := data[i+len(mapName):]
	j := bytes.IndexByte(rest, '{')
	if j < 0 {
		return
	}

	depth := 0
	for k := j; k < len(rest); k++ {
		switch rest[k] {
		case '{':
			depth++
		case '}':
			depth--
		}
		if depth <= 0 {
			t.writeRaw(rest[j : k+1])
			return
		}
	}
}
