// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/gobwas/glob"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"golang.org/x/image/draw"
)

// Avatar defaults.
const (
	DefaultAvatarMaxBytes     = 1_000_000
	DefaultAvatarSize         = 250
	DefaultAvatarMaxDimension = 8192
)

// DefaultAvatarExtensions lists the filename extensions accepted by default.
var DefaultAvatarExtensions = []string{"png", "jpg", "jpeg"}

// AvatarConfig bounds and shapes avatar uploads. Zero values select defaults.
type AvatarConfig struct {
	// MaxBytes is the largest accepted upload.
	MaxBytes int64
	// Size is the edge length of the stored square image, in pixels.
	Size int
	// MaxDimension is the largest accepted source width or height.
	MaxDimension int
	// Extensions are the accepted filename extensions, without the dot.
	Extensions []string
}

// AvatarPipeline validates uploaded images, normalizes them to a fixed-size
// PNG square, and stores them on the user.
type AvatarPipeline struct {
	store        *CredentialStore
	maxBytes     int64
	size         int
	maxDimension int
	filenames    glob.Glob
	pattern      string
}

// NewAvatarPipeline creates an AvatarPipeline.
func NewAvatarPipeline(store *CredentialStore, cfg AvatarConfig) (*AvatarPipeline, error) {
	if store == nil {
		return nil, oops.Errorf("credential store is required")
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = DefaultAvatarMaxBytes
	}
	if cfg.Size == 0 {
		cfg.Size = DefaultAvatarSize
	}
	if cfg.MaxDimension == 0 {
		cfg.MaxDimension = DefaultAvatarMaxDimension
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultAvatarExtensions
	}
	if cfg.MaxBytes < 0 || cfg.Size < 0 || cfg.MaxDimension < 0 {
		return nil, oops.Code("AVATAR_INVALID_CONFIG").Errorf("avatar limits cannot be negative")
	}

	exts := make([]string, len(cfg.Extensions))
	for i, ext := range cfg.Extensions {
		exts[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	}
	pattern := fmt.Sprintf("*.{%s}", strings.Join(exts, ","))
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, oops.Code("AVATAR_INVALID_CONFIG").With("pattern", pattern).Wrap(err)
	}

	return &AvatarPipeline{
		store:        store,
		maxBytes:     cfg.MaxBytes,
		size:         cfg.Size,
		maxDimension: cfg.MaxDimension,
		filenames:    g,
		pattern:      pattern,
	}, nil
}

// Upload normalizes raw and stores it as the user's avatar.
func (p *AvatarPipeline) Upload(ctx context.Context, userID ulid.ULID, raw []byte, filename string) error {
	if int64(len(raw)) > p.maxBytes {
		return oops.Code("AVATAR_TOO_LARGE").
			With("size", len(raw)).
			With("max", p.maxBytes).
			Wrapf(ErrPayloadTooLarge, "avatar exceeds %d bytes", p.maxBytes)
	}
	if !p.filenames.Match(strings.ToLower(filename)) {
		return oops.Code("AVATAR_UNSUPPORTED_TYPE").
			With("filename", filename).
			With("accepted", p.pattern).
			Wrapf(ErrUnsupportedMedia, "please upload an image")
	}

	normalized, err := p.Normalize(raw)
	if err != nil {
		return err
	}

	_, err = p.store.Modify(ctx, userID, func(u *User) error {
		u.Avatar = normalized
		return nil
	})
	return err
}

// Normalize decodes a PNG or JPEG image, crops it to a centered square,
// scales it to the configured size, and encodes it as PNG.
func (p *AvatarPipeline) Normalize(raw []byte) ([]byte, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, oops.Code("AVATAR_DECODE_FAILED").Wrapf(ErrUnsupportedMedia, "avatar is not a readable image")
	}
	if format != "png" && format != "jpeg" {
		return nil, oops.Code("AVATAR_UNSUPPORTED_TYPE").
			With("format", format).
			Wrapf(ErrUnsupportedMedia, "avatar must be a PNG or JPEG image")
	}
	if cfg.Width > p.maxDimension || cfg.Height > p.maxDimension {
		return nil, oops.Code("AVATAR_TOO_LARGE").
			With("width", cfg.Width).
			With("height", cfg.Height).
			With("max", p.maxDimension).
			Wrapf(ErrPayloadTooLarge, "avatar dimensions exceed %dpx", p.maxDimension)
	}

	var src image.Image
	switch format {
	case "png":
		src, err = png.Decode(bytes.NewReader(raw))
	default:
		src, err = jpeg.Decode(bytes.NewReader(raw))
	}
	if err != nil {
		return nil, oops.Code("AVATAR_DECODE_FAILED").Wrapf(ErrUnsupportedMedia, "avatar is not a readable image")
	}

	dst := image.NewRGBA(image.Rect(0, 0, p.size, p.size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, centerSquare(src.Bounds()), draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, oops.Code("AVATAR_ENCODE_FAILED").Wrap(err)
	}
	return buf.Bytes(), nil
}

// Clear removes the user's avatar.
func (p *AvatarPipeline) Clear(ctx context.Context, userID ulid.ULID) error {
	_, err := p.store.Modify(ctx, userID, func(u *User) error {
		u.Avatar = nil
		return nil
	})
	return err
}

// Fetch returns the user's stored avatar PNG.
func (p *AvatarPipeline) Fetch(ctx context.Context, userID ulid.ULID) ([]byte, error) {
	user, err := p.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(user.Avatar) == 0 {
		return nil, oops.Code("AVATAR_NOT_FOUND").
			With("user_id", userID.String()).
			Wrapf(ErrNotFound, "user has no avatar")
	}
	return user.Avatar, nil
}

// centerSquare returns the largest square centered in r.
func centerSquare(r image.Rectangle) image.Rectangle {
	side := min(r.Dx(), r.Dy())
	x0 := r.Min.X + (r.Dx()-side)/2
	y0 := r.Min.Y + (r.Dy()-side)/2
	return image.Rect(x0, y0, x0+side, y0+side)
}
