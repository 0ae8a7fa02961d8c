package attachment

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"hackhub/internal/apperr"
	"hackhub/internal/message"
	"hackhub/internal/remote"
)

const outputMime = "image/jpeg"

// MaxImagePixels caps the declared dimensions of an image before it is
// decoded. Decoders allocate the full frame up front.
const MaxImagePixels = 50_000_000

// Prepared is a validated, possibly recompressed payload.
type Prepared struct {
	File       File
	Original   int64
	Compressed bool
}

// Pipeline validates and shrinks payloads before either backend stores them.
type Pipeline struct {
	limits Limits
	log    zerolog.Logger
	now    func() time.Time
}

func NewPipeline(limits Limits, log zerolog.Logger) *Pipeline {
	return &Pipeline{limits: limits, log: log, now: time.Now}
}

func (p *Pipeline) Limits() Limits { return p.limits }

// Validate rejects payloads above ceiling or outside the mime allow-list.
func (p *Pipeline) Validate(f File, ceiling int64) error {
	name := f.Name
	if name == "" {
		name = "unnamed file"
	}
	if f.Size() == 0 {
		return apperr.Validation(name, "file is empty")
	}
	if ceiling > 0 && f.Size() > ceiling {
		return apperr.Validation(name, fmt.Sprintf("file is %s, limit is %s", humanSize(f.Size()), humanSize(ceiling)))
	}
	if mt := f.ResolveMime(); !p.allowed(mt) {
		return apperr.Validation(name, fmt.Sprintf("file type %q is not allowed", mt))
	}
	return nil
}

func (p *Pipeline) allowed(mt string) bool {
	for _, prefix := range p.limits.MimePrefixes {
		if strings.HasPrefix(mt, prefix) {
			return true
		}
	}
	for _, exact := range p.limits.MimeTypes {
		if mt == exact {
			return true
		}
	}
	return false
}

// CompressIfImage re-encodes decodable images as JPEG within maxW x maxH.
// Other payloads, and images that would only grow, come back unchanged with
// compressed=false. Images declaring more than MaxImagePixels are rejected
// without being decoded.
func CompressIfImage(f File, maxW, maxH, quality int) (File, bool, error) {
	if message.KindForMime(f.MimeType) != message.KindImage {
		return f, false, nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(f.Data))
	if err != nil {
		// svg, heic and friends: nothing we can decode, store as sent
		return f, false, nil
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return File{}, false, apperr.Validation(f.Name,
			fmt.Sprintf("image is %dx%d, limit is %d megapixels", cfg.Width, cfg.Height, MaxImagePixels/1_000_000))
	}
	src, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return f, false, nil
	}
	b := src.Bounds()
	w, h := FitWithin(b.Dx(), b.Dy(), maxW, maxH)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: clampQuality(quality)}); err != nil {
		return File{}, false, fmt.Errorf("encode %s: %w", f.Name, err)
	}
	resized := w != b.Dx() || h != b.Dy()
	if !resized && int64(buf.Len()) >= f.Size() {
		return f, false, nil
	}
	return File{
		Name:     jpegName(f.Name),
		MimeType: outputMime,
		Data:     buf.Bytes(),
	}, true, nil
}

// FitWithin scales w x h down to fit maxW x maxH keeping the aspect ratio.
// It never scales up.
func FitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && float64(h)*scale > float64(maxH) {
		scale = float64(maxH) / float64(h)
	}
	if scale >= 1 {
		return w, h
	}
	nw := int(float64(w)*scale + 0.5)
	nh := int(float64(h)*scale + 0.5)
	if maxW > 0 && nw > maxW {
		nw = maxW
	}
	if maxH > 0 && nh > maxH {
		nh = maxH
	}
	return max(nw, 1), max(nh, 1)
}

// Prepare validates f against ceiling and recompresses images.
func (p *Pipeline) Prepare(f File, ceiling int64) (Prepared, error) {
	f.Name = SanitizeFileName(f.Name)
	if f.Name == "" {
		f.Name = "upload.bin"
	}
	if err := p.Validate(f, ceiling); err != nil {
		return Prepared{}, err
	}
	f.MimeType = f.ResolveMime()
	out, compressed, err := CompressIfImage(f, p.limits.MaxWidth, p.limits.MaxHeight, p.limits.Quality)
	if err != nil {
		if apperr.Is(err, apperr.CodeValidation) {
			return Prepared{}, err
		}
		return Prepared{}, apperr.Wrap(apperr.CodeValidation, f.Name, "image could not be processed", err)
	}
	if compressed {
		p.log.Debug().
			Str("file", f.Name).
			Int64("before", f.Size()).
			Int("after", len(out.Data)).
			Msg("image recompressed")
	}
	return Prepared{File: out, Original: f.Size(), Compressed: compressed}, nil
}

// PersistLocal embeds the prepared payload inline. The local ceiling applies
// to the original upload and to the payload that is actually stored.
func (p *Pipeline) PersistLocal(prep Prepared) (message.Attachment, error) {
	name := prep.File.Name
	if prep.Original > p.limits.LocalMaxBytes || prep.File.Size() > p.limits.LocalMaxBytes {
		return message.Attachment{}, apperr.Validation(name,
			fmt.Sprintf("file exceeds the %s offline limit", humanSize(p.limits.LocalMaxBytes)))
	}
	return message.Attachment{
		ID:         uuid.NewString(),
		FileName:   name,
		MimeType:   prep.File.MimeType,
		Size:       prep.File.Size(),
		Locator:    EncodeInline(prep.File),
		Context:    "message",
		Checksum:   Checksum(prep.File.Data),
		Compressed: prep.Compressed,
	}, nil
}

// Upload is the result of a remote persist: the metadata plus where the
// object lives so it can be removed again.
type Upload struct {
	Attachment message.Attachment
	Bucket     string
	Path       string
}

// PersistRemote uploads the prepared payload under owner's folder.
func (p *Pipeline) PersistRemote(ctx context.Context, objects remote.Objects, bucket, owner, uploadContext string, prep Prepared) (Upload, error) {
	id := uuid.NewString()
	ext := strings.ToLower(filepath.Ext(prep.File.Name))
	path := fmt.Sprintf("%s/%d-%s%s", owner, p.now().UnixMilli(), id[:8], ext)
	if err := objects.Upload(ctx, bucket, path, prep.File.Data, prep.File.MimeType); err != nil {
		return Upload{}, fmt.Errorf("upload %s: %w", prep.File.Name, err)
	}
	return Upload{
		Attachment: message.Attachment{
			ID:         id,
			FileName:   prep.File.Name,
			MimeType:   prep.File.MimeType,
			Size:       prep.File.Size(),
			Locator:    objects.PublicURL(bucket, path),
			Context:    uploadContext,
			Checksum:   Checksum(prep.File.Data),
			Compressed: prep.Compressed,
		},
		Bucket: bucket,
		Path:   path,
	}, nil
}

func clampQuality(q int) int {
	switch {
	case q <= 0:
		return DefaultQuality
	case q > 100:
		return 100
	default:
		return q
	}
}

func jpegName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if base == "" {
		base = "image"
	}
	return base + ".jpg"
}

func humanSize(n int64) string {
	if n >= MB {
		return fmt.Sprintf("%.1f MB", float64(n)/MB)
	}
	if n >= 1024 {
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	}
	return fmt.Sprintf("%d B", n)
}
