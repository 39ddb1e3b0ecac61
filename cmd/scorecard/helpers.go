package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
)

// readJSONFile decodes path into dest keeping numbers as json.Number so
// large ids survive unchanged.
func readJSONFile(path string, dest interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	return decoder.Decode(dest)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
