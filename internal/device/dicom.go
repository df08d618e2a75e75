package device

import (
	"bytes"
	"path/filepath"
	"strings"
)

var vendorMarkers = [][]byte{
	[]byte("RVGIMG"),
	[]byte("CSDRAY"),
	[]byte("Carestream"),
}

// IsDICOM reports whether content looks like a DICOM or vendor dental
// radiograph: the DICM magic after the 128 byte preamble, or a known vendor
// marker in the first 100 bytes.
func IsDICOM(content []byte) bool {
	if len(content) >= 132 && bytes.Equal(content[128:132], []byte("DICM")) {
		return true
	}
	head := content
	if len(head) > 100 {
		head = head[:100]
	}
	for _, marker := range vendorMarkers {
		if bytes.Contains(head, marker) {
			return true
		}
	}
	return false
}

// HasDICOMExtension reports whether name carries a .dcm or .rvg extension.
func HasDICOMExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".dcm", ".rvg":
		return true
	}
	return false
}
