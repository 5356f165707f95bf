package images

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"

	"github.com/disintegration/imaging"
)

type DpiType uint8

const (
	DpiNoUnits DpiType = iota
	DpiPxPerInch
	DpiPxPerSm
)

// ScreenDPI is density recorded in generated thumbnails.
const ScreenDPI = 96

// EnsureJFIFAPP0 inserts JFIF APP0 marker segment if it is missing.
func EnsureJFIFAPP0(jpegData []byte, dpit DpiType, xdensity, ydensity int16) ([]byte, bool, error) {
	if len(jpegData) < 4 {
		return nil, false, errors.New("jpeg too small")
	}
	if jpegData[0] != 0xFF || jpegData[1] != 0xD8 {
		return nil, false, errors.New("not a jpeg")
	}
	if jpegData[2] == 0xFF && jpegData[3] == 0xE0 {
		return jpegData, false, nil
	}

	buf := bytes.NewBuffer(make([]byte, 0, len(jpegData)+18))
	buf.Write(jpegData[:2])
	buf.Write([]byte{0xFF, 0xE0})
	_ = binary.Write(buf, binary.BigEndian, uint16(0x10))
	buf.Write([]byte("JFIF\x00\x01\x02"))
	buf.WriteByte(byte(dpit))
	_ = binary.Write(buf, binary.BigEndian, uint16(xdensity))
	_ = binary.Write(buf, binary.BigEndian, uint16(ydensity))
	_ = binary.Write(buf, binary.BigEndian, uint16(0))
	buf.Write(jpegData[2:])
	return buf.Bytes(), true, nil
}

// Thumbnail scales image down to fit into box x box pixels and encodes it as
// JPEG. Images already fitting are not enlarged.
func Thumbnail(img image.Image, box, quality int) ([]byte, error) {
	if b := img.Bounds(); box > 0 && (b.Dx() > box || b.Dy() > box) {
		img = imaging.Fit(img, box, box, imaging.Lanczos)
	}
	// transparent areas become white rather than black
	bg := imaging.New(img.Bounds().Dx(), img.Bounds().Dy(), image.White)
	img = imaging.Overlay(bg, img, image.Point{}, 1.0)

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	out, _, err := EnsureJFIFAPP0(buf.Bytes(), DpiPxPerInch, ScreenDPI, ScreenDPI)
	if err != nil {
		return nil, err
	}
	return out, nil
}
