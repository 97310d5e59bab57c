package onnx

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ResolveExternalData loads externally stored tensor payloads into RawData.
// Locations are resolved relative to the directory containing the model file
// at modelPath. Tensors with embedded data are left untouched.
func ResolveExternalData(m *ModelProto, modelPath string) error {
	if m.Graph == nil {
		return nil
	}
	baseDir := filepath.Dir(modelPath)
	for i := range m.Graph.Initializers {
		t := &m.Graph.Initializers[i]
		if t.DataLocation != DataLocationExternal {
			continue
		}
		if err := loadExternalTensor(t, baseDir); err != nil {
			return fmt.Errorf("initializer %q: %w", t.Name, err)
		}
	}
	return nil
}

// loadExternalTensor reads one tensor's payload from its external file.
func loadExternalTensor(t *TensorProto, baseDir string) error {
	var location string
	var offset, length int64 = 0, -1
	for _, entry := range t.ExternalData {
		var err error
		switch entry.Key {
		case "location":
			location = entry.Value
		case "offset":
			offset, err = strconv.ParseInt(entry.Value, 10, 64)
		case "length":
			length, err = strconv.ParseInt(entry.Value, 10, 64)
		}
		if err != nil {
			return fmt.Errorf("bad external_data entry %s=%q: %w", entry.Key, entry.Value, err)
		}
	}
	if location == "" {
		return fmt.Errorf("external tensor has no location entry")
	}
	if filepath.IsAbs(location) || filepath.Clean(location) != location || location[0] == '.' {
		return fmt.Errorf("external data location %q escapes the model directory", location)
	}

	data, err := os.ReadFile(filepath.Join(baseDir, location)) //nolint:gosec // Path is confined to the model directory above.
	if err != nil {
		return fmt.Errorf("failed to read external data: %w", err)
	}
	if offset < 0 || offset > int64(len(data)) {
		return fmt.Errorf("external data offset %d out of range (file size %d)", offset, len(data))
	}
	if length < 0 {
		length = int64(len(data)) - offset
	}
	if offset+length > int64(len(data)) {
		return fmt.Errorf("external data range [%d, %d) out of range (file size %d)", offset, offset+length, len(data))
	}

	t.RawData = data[offset : offset+length]
	t.DataLocation = DataLocationDefault
	t.ExternalData = nil
	return nil
}
