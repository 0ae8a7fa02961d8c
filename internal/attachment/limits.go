package attachment

const (
	MB = 1024 * 1024

	DefaultLocalMaxBytes  = 5 * MB
	DefaultRemoteMaxBytes = 50 * MB

	DefaultMaxWidth  = 1920
	DefaultMaxHeight = 1920
	DefaultQuality   = 80
)

// DefaultMimePrefixes are accepted whatever follows the slash.
var DefaultMimePrefixes = []string{"image/", "video/", "audio/", "text/"}

// DefaultMimeTypes are accepted exactly.
var DefaultMimeTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"application/zip",
	"application/x-zip-compressed",
}

// Limits holds the ceilings, allow-list and recompression settings.
type Limits struct {
	LocalMaxBytes  int64
	RemoteMaxBytes int64
	MimePrefixes   []string
	MimeTypes      []string
	MaxWidth       int
	MaxHeight      int
	Quality        int
}

func DefaultLimits() Limits {
	return Limits{
		LocalMaxBytes:  DefaultLocalMaxBytes,
		RemoteMaxBytes: DefaultRemoteMaxBytes,
		MimePrefixes:   DefaultMimePrefixes,
		MimeTypes:      DefaultMimeTypes,
		MaxWidth:       DefaultMaxWidth,
		MaxHeight:      DefaultMaxHeight,
		Quality:        DefaultQuality,
	}
}
