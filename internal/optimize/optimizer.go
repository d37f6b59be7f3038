// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

// Package optimize shrinks collection photos before upload and
// verification. Phone cameras produce multi-megabyte originals; the
// pipeline wants something small enough to upload over rural links and
// cheap to send to the AI model. The optimizer also derives the content
// hash that keys the verification cache.
package optimize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	"github.com/dairystack/milkcheck/internal/config"
)

// Optimized is the result of image optimization.
type Optimized struct {
	Data             []byte
	Hash             string // SHA-256 hex of the optimized bytes
	ContentType      string
	OriginalSize     int64
	OptimizedSize    int64
	CompressionRatio float64 // percent of the original size shaved off
}

// Optimizer prepares an image for upload and verification.
type Optimizer interface {
	Optimize(original []byte) (*Optimized, error)
}

// JPEGOptimizer re-encodes images as JPEG, scaling the longest edge down
// to the configured maximum and stepping quality down toward the
// best-effort size target.
type JPEGOptimizer struct {
	quality      int
	maxDimension int
	targetBytes  int64
}

// New creates a JPEGOptimizer from configuration.
func New(cfg config.UploadConfig) *JPEGOptimizer {
	quality := cfg.CompressionQuality
	if quality < 1 || quality > 100 {
		quality = 78
	}
	maxDim := cfg.MaxDimension
	if maxDim < 1 {
		maxDim = 1600
	}
	return &JPEGOptimizer{
		quality:      quality,
		maxDimension: maxDim,
		targetBytes:  cfg.TargetBytes,
	}
}

// Optimize decodes, scales, and re-encodes the image. JPEG and PNG
// sources are accepted; the output is always JPEG.
func (o *JPEGOptimizer) Optimize(original []byte) (*Optimized, error) {
	if len(original) == 0 {
		return nil, fmt.Errorf("empty image")
	}

	src, _, err := image.Decode(bytes.NewReader(original))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	scaled := o.scale(src)

	encoded, err := o.encode(scaled, o.quality)
	if err != nil {
		return nil, err
	}

	// Step quality down toward the size target. Two extra passes at most;
	// image dimensions dominate output size anyway.
	if o.targetBytes > 0 {
		for q := o.quality - 15; int64(len(encoded)) > o.targetBytes && q >= 40; q -= 15 {
			encoded, err = o.encode(scaled, q)
			if err != nil {
				return nil, err
			}
		}
	}

	sum := sha256.Sum256(encoded)
	out := &Optimized{
		Data:          encoded,
		Hash:          hex.EncodeToString(sum[:]),
		ContentType:   "image/jpeg",
		OriginalSize:  int64(len(original)),
		OptimizedSize: int64(len(encoded)),
	}
	if out.OriginalSize > 0 {
		out.CompressionRatio = (1 - float64(out.OptimizedSize)/float64(out.OriginalSize)) * 100
	}
	return out, nil
}

// scale shrinks src so its longest edge is at most maxDimension.
// Smaller images pass through untouched; photos are never upscaled.
func (o *JPEGOptimizer) scale(src image.Image) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= o.maxDimension {
		return src
	}

	ratio := float64(o.maxDimension) / float64(longest)
	nw := int(float64(w) * ratio)
	nh := int(float64(h) * ratio)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func (o *JPEGOptimizer) encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Hash returns the SHA-256 hex digest of data. Exposed for callers that
// need the cache key of an already optimized payload.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
