package attachment

import (
	"encoding/base64"
	"encoding/hex"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// File is an in-memory payload on its way to storage.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

func (f File) Size() int64 { return int64(len(f.Data)) }

// ResolveMime normalizes the declared mime type, sniffing the content when
// none was given.
func (f File) ResolveMime() string {
	declared := strings.TrimSpace(f.MimeType)
	if declared != "" && declared != "application/octet-stream" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			return strings.ToLower(mt)
		}
		return strings.ToLower(declared)
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Name))); byExt != "" {
		if mt, _, err := mime.ParseMediaType(byExt); err == nil {
			return mt
		}
	}
	n := len(f.Data)
	if n > 512 {
		n = 512
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(f.Data[:n]))
	return mt
}

// SanitizeFileName strips directories and whitespace from a client name.
func SanitizeFileName(name string) string {
	cleaned := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" || cleaned == "." || cleaned == "/" || cleaned == ".." {
		return ""
	}
	return cleaned
}

// Checksum is the hex blake2b-256 digest of data.
func Checksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// EncodeInline embeds the payload as a data URL.
func EncodeInline(f File) string {
	return "data:" + f.MimeType + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}
