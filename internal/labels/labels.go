// Package labels produces the QR code labels stuck on machines.
package labels

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	qrcode "github.com/skip2/go-qrcode"
)

const DefaultSize = 256

// Encoder turns a machine id into a PNG image.
type Encoder interface {
	Encode(content string) ([]byte, error)
}

type PNGEncoder struct {
	Size int
}

func (e PNGEncoder) Encode(content string) ([]byte, error) {
	size := e.Size
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(content, qrcode.Low, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr %s: %w", content, err)
	}
	return png, nil
}

// Store writes labels as <Dir>/<machine id>.png.
type Store struct {
	Dir     string
	Encoder Encoder
}

func (s Store) WriteLabel(_ context.Context, machineID string) (string, error) {
	png, err := s.Encoder.Encode(machineID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.Dir, filepath.Base(machineID)+".png")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
