package envelope

import "bytes"

// Format identifies the container format of a decrypted item.
type Format string

// Recognized container formats.
const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatUnknown Format = "unknown"
)

// magicTable holds the signatures checked against the head of a plaintext,
// in match order.
var magicTable = []struct {
	prefix []byte
	format Format
}{
	{[]byte{0xFF, 0xD8, 0xFF}, FormatJPEG},
	{[]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, FormatPNG},
	{[]byte("GIF87a"), FormatGIF},
	{[]byte("GIF89a"), FormatGIF},
}

// DetectFormat sniffs the leading bytes of data against the known image
// signatures. Unrecognized data yields FormatUnknown, not an error; the
// caller decides whether a generic binary artifact is acceptable.
func DetectFormat(data []byte) Format {
	for _, m := range magicTable {
		if bytes.HasPrefix(data, m.prefix) {
			return m.format
		}
	}
	return FormatUnknown
}

// Ext returns the conventional file extension for the format, including
// the leading dot. Unknown formats map to ".bin".
func (f Format) Ext() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatPNG:
		return ".png"
	case FormatGIF:
		return ".gif"
	}
	return ".bin"
}
