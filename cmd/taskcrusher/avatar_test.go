// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/taskcrusher/internal/account"
	"github.com/holomush/taskcrusher/pkg/errutil"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255}) //nolint:gosec // test pattern
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func TestAvatarUploadAndFetch(t *testing.T) {
	h := newHarness(t)
	session := h.register("Alice", "alice@example.com")
	dir := t.TempDir()
	src := filepath.Join(dir, "me.PNG")
	writePNG(t, src, 400, 300)

	h.mustRun("user", "avatar", "upload", "--token", session.Token, src)

	user := decodeUser(t, h.mustRun("user", "show", "--token", session.Token))
	assert.True(t, user.HasAvatar)

	own := filepath.Join(dir, "own.png")
	h.mustRun("user", "avatar", "fetch", "--token", session.Token, "-o", own)
	byID := filepath.Join(dir, "by-id.png")
	h.mustRun("user", "avatar", "fetch", session.User.ID.String(), "--output", byID)

	for _, path := range []string{own, byID} {
		f, err := os.Open(path) //nolint:gosec // test temp file
		require.NoError(t, err)
		cfg, err := png.DecodeConfig(f)
		_ = f.Close()
		require.NoError(t, err)
		assert.Equal(t, account.DefaultAvatarSize, cfg.Width)
		assert.Equal(t, account.DefaultAvatarSize, cfg.Height)
	}
}

func TestAvatarClear(t *testing.T) {
	h := newHarness(t)
	session := h.register("Alice", "alice@example.com")
	src := filepath.Join(t.TempDir(), "me.png")
	writePNG(t, src, 64, 64)
	h.mustRun("user", "avatar", "upload", "--token", session.Token, src)

	h.mustRun("user", "avatar", "clear", "--token", session.Token)

	user := decodeUser(t, h.mustRun("user", "show", "--token", session.Token))
	assert.False(t, user.HasAvatar)
	_, err := h.run("user", "avatar", "fetch", session.User.ID.String(), "-o", filepath.Join(t.TempDir(), "x.png"))
	require.Error(t, err)
	assert.Equal(t, account.KindNotFound, account.KindOf(err))
}

func TestAvatarUpload_Rejections(t *testing.T) {
	h := newHarness(t)
	session := h.register("Alice", "alice@example.com")
	dir := t.TempDir()

	gif := filepath.Join(dir, "me.gif")
	writePNG(t, gif, 10, 10)
	_, err := h.run("user", "avatar", "upload", "--token", session.Token, gif)
	require.Error(t, err)
	assert.Equal(t, account.KindUnsupportedMedia, account.KindOf(err))

	_, err = h.run("user", "avatar", "upload", "--token", session.Token, filepath.Join(dir, "missing.png"))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AVATAR_READ_FAILED")
}

func TestAvatarFetch_InvalidID(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("user", "avatar", "fetch", "not-an-id")

	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "USER_INVALID_ID")
	assert.Equal(t, account.KindValidation, account.KindOf(err))
}
