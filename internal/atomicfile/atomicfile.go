// Package atomicfile provides the write-temp-then-rename primitive
// every artifact/report/manifest writer in this module relies on so a
// crash mid-write never leaves a half-written file in place.
package atomicfile

import (
	"encoding/json"
	"os"
)

// Write writes data to path via a sibling ".tmp" file and rename.
func Write(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// WriteJSON marshals v as indented JSON and writes it atomically.
func WriteJSON(path string, v any) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return Write(path, buf)
}
