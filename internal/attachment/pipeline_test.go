package attachment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackhub/internal/apperr"
)

func pngFile(t *testing.T, w, h int, noisy bool) File {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	if noisy {
		rng := rand.New(rand.NewSource(42))
		rng.Read(img.Pix)
		for i := 3; i < len(img.Pix); i += 4 {
			img.Pix[i] = 0xff
		}
	} else {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 80, A: 0xff})
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return File{Name: "photo.png", MimeType: "image/png", Data: buf.Bytes()}
}

func TestValidateRejectsAboveRemoteCeiling(t *testing.T) {
	p := NewPipeline(DefaultLimits(), zerolog.Nop())
	big := File{Name: "movie.mp4", MimeType: "video/mp4", Data: make([]byte, DefaultRemoteMaxBytes+1)}
	err := p.Validate(big, DefaultRemoteMaxBytes)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
	assert.Equal(t, "movie.mp4", apperr.ItemOf(err))

	atLimit := File{Name: "movie.mp4", MimeType: "video/mp4", Data: make([]byte, DefaultRemoteMaxBytes)}
	assert.NoError(t, p.Validate(atLimit, DefaultRemoteMaxBytes))
}

func TestValidateMimeAllowList(t *testing.T) {
	p := NewPipeline(DefaultLimits(), zerolog.Nop())
	cases := map[string]bool{
		"image/webp":                true,
		"audio/mpeg":                true,
		"text/csv":                  true,
		"application/pdf":           true,
		"application/zip":           true,
		"application/x-sh":          false,
		"application/x-msdownload":  false,
		"text/plain; charset=utf-8": true,
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	}
	for mt, ok := range cases {
		err := p.Validate(File{Name: "f", MimeType: mt, Data: []byte("x")}, 0)
		if ok {
			assert.NoError(t, err, mt)
		} else {
			assert.True(t, apperr.Is(err, apperr.CodeValidation), mt)
		}
	}
}

func TestValidateRejectsEmpty(t *testing.T) {
	p := NewPipeline(DefaultLimits(), zerolog.Nop())
	assert.Error(t, p.Validate(File{Name: "a.txt", MimeType: "text/plain"}, 0))
}

func TestResolveMimeSniffsContent(t *testing.T) {
	f := File{Name: "blob", Data: []byte("%PDF-1.7 rest of document")}
	assert.Equal(t, "application/pdf", f.ResolveMime())
	f = File{Name: "pic.png", MimeType: "application/octet-stream"}
	assert.Equal(t, "image/png", f.ResolveMime())
}

func TestFitWithinKeepsAspect(t *testing.T) {
	w, h := FitWithin(4000, 3000, 1920, 1920)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1440, h)

	w, h = FitWithin(1000, 5000, 1920, 1920)
	assert.Equal(t, 384, w)
	assert.Equal(t, 1920, h)

	w, h = FitWithin(800, 600, 1920, 1920)
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)
}

func TestCompressIfImageResizes(t *testing.T) {
	src := pngFile(t, 400, 200, false)
	out, compressed, err := CompressIfImage(src, 100, 100, 70)
	require.NoError(t, err)
	require.True(t, compressed)
	assert.Equal(t, "image/jpeg", out.MimeType)
	assert.Equal(t, "photo.jpg", out.Name)

	img, err := jpeg.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

// hugePNG is a valid 1x1 PNG whose header claims w x h.
func hugePNG(t *testing.T, w, h uint32) File {
	t.Helper()
	f := pngFile(t, 1, 1, false)
	data := append([]byte(nil), f.Data...)
	// signature(8) length(4) "IHDR"(4) width(4) height(4) ... crc at 29
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	f.Name = "huge.png"
	f.Data = data
	return f
}

func TestCompressIfImageRejectsHugeDimensions(t *testing.T) {
	src := hugePNG(t, 200000, 200000)
	require.Less(t, src.Size(), int64(200))

	_, _, err := CompressIfImage(src, 1920, 1920, 80)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	p := NewPipeline(DefaultLimits(), zerolog.Nop())
	_, err = p.Prepare(src, DefaultRemoteMaxBytes)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
	assert.Equal(t, "huge.png", apperr.ItemOf(err))
	assert.Contains(t, err.Error(), "200000x200000")
}

func TestCompressIfImagePassesThroughOthers(t *testing.T) {
	doc := File{Name: "notes.pdf", MimeType: "application/pdf", Data: []byte("%PDF")}
	out, compressed, err := CompressIfImage(doc, 10, 10, 50)
	require.NoError(t, err)
	assert.False(t, compressed)
	assert.Equal(t, doc, out)

	svg := File{Name: "logo.svg", MimeType: "image/svg+xml", Data: []byte("<svg/>")}
	out, compressed, err = CompressIfImage(svg, 10, 10, 50)
	require.NoError(t, err)
	assert.False(t, compressed)
	assert.Equal(t, svg, out)
}

func TestPersistLocalEnforcesOfflineCeiling(t *testing.T) {
	p := NewPipeline(DefaultLimits(), zerolog.Nop())
	prep, err := p.Prepare(File{Name: "dump.zip", MimeType: "application/zip", Data: make([]byte, 6*MB)}, DefaultRemoteMaxBytes)
	require.NoError(t, err)
	_, err = p.PersistLocal(prep)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
	assert.Equal(t, "dump.zip", apperr.ItemOf(err))
}

func TestPrepareAndPersistLocalLargeImage(t *testing.T) {
	p := NewPipeline(DefaultLimits(), zerolog.Nop())
	src := pngFile(t, 800, 880, true)
	require.Greater(t, src.Size(), int64(2_000_000))

	prep, err := p.Prepare(src, DefaultRemoteMaxBytes)
	require.NoError(t, err)
	assert.LessOrEqual(t, prep.File.Size(), int64(DefaultLocalMaxBytes))

	att, err := p.PersistLocal(prep)
	require.NoError(t, err)
	assert.Equal(t, prep.File.Size(), att.Size)
	assert.Len(t, att.Checksum, 64)

	prefix := "data:" + prep.File.MimeType + ";base64,"
	require.True(t, strings.HasPrefix(att.Locator, prefix))
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(att.Locator, prefix))
	require.NoError(t, err)
	assert.Equal(t, prep.File.Data, data)
}

type recordingObjects struct {
	uploads map[string][]byte
}

func (r *recordingObjects) Upload(_ context.Context, bucket, path string, data []byte, _ string) error {
	r.uploads[bucket+"/"+path] = data
	return nil
}

func (r *recordingObjects) PublicURL(bucket, path string) string {
	return "https://cdn.example.test/" + bucket + "/" + path
}

func (r *recordingObjects) Remove(_ context.Context, bucket string, paths ...string) error {
	for _, p := range paths {
		delete(r.uploads, bucket+"/"+p)
	}
	return nil
}

func TestPersistRemote(t *testing.T) {
	p := NewPipeline(DefaultLimits(), zerolog.Nop())
	objects := &recordingObjects{uploads: map[string][]byte{}}
	prep, err := p.Prepare(File{Name: "../../report.pdf", MimeType: "application/pdf", Data: []byte("%PDF-1.4")}, DefaultRemoteMaxBytes)
	require.NoError(t, err)

	up, err := p.PersistRemote(context.Background(), objects, "message-attachments", "alice", "message", prep)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", up.Attachment.FileName)
	assert.True(t, strings.HasPrefix(up.Path, "alice/"))
	assert.True(t, strings.HasSuffix(up.Path, ".pdf"))
	assert.Equal(t, "https://cdn.example.test/message-attachments/"+up.Path, up.Attachment.Locator)
	assert.Contains(t, objects.uploads, "message-attachments/"+up.Path)
}

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "passwd", SanitizeFileName("../../etc/passwd"))
	assert.Equal(t, "evil.exe", SanitizeFileName(`C:\temp\evil.exe`))
	assert.Equal(t, "", SanitizeFileName("  "))
}
