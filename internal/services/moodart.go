package services

import (
	"context"
	"encoding/hex"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	"github.com/inkwelldiary/inkwell/internal/logger"
	"github.com/inkwelldiary/inkwell/internal/types"
)

// MoodArtService renders the profile's visual mood colour into a small
// PNG swatch: a vertical gradient from the mood colour down to a darker
// shade, with the user's initial on top when a font is available.
type MoodArtService interface {
	RenderProfileSwatch(ctx context.Context, profile *types.UserProfile) (string, error)
}

type moodArtService struct {
	log      *logger.Logger
	outDir   string
	fontFace font.Face
}

// NewMoodArtService loads the optional MOOD_ART_FONT face. Rendering
// works without it; the swatch just omits the initial.
func NewMoodArtService(baseLog *logger.Logger, outDir string) (MoodArtService, error) {
	serviceLog := baseLog.With("service", "MoodArtService")

	if strings.TrimSpace(outDir) == "" {
		return nil, fmt.Errorf("mood art output dir required")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create mood art dir: %w", err)
	}

	var face font.Face
	if fontPath := strings.TrimSpace(os.Getenv("MOOD_ART_FONT")); fontPath != "" {
		loaded, err := loadFontFace(fontPath, 96)
		if err != nil {
			serviceLog.Warn("Mood art font not loaded, rendering without initial", "font", fontPath, "error", err)
		} else {
			face = loaded
		}
	}

	return &moodArtService{log: serviceLog, outDir: outDir, fontFace: face}, nil
}

func (s *moodArtService) RenderProfileSwatch(ctx context.Context, profile *types.UserProfile) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if profile == nil {
		return "", fmt.Errorf("profile required")
	}

	base, err := parseMoodColour(profile.VisualMoodColour)
	if err != nil {
		s.log.Warn("Profile mood colour unusable, using fallback", "colour", profile.VisualMoodColour, "error", err)
		base = color.NRGBA{R: 0x90, G: 0xA4, B: 0xAE, A: 0xFF}
	}

	const size = 256
	dc := gg.NewContext(size, size)

	grad := gg.NewLinearGradient(0, 0, 0, size)
	grad.AddColorStop(0, base)
	grad.AddColorStop(1, darken(base, 0.55))
	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, 0, size, size)
	dc.Fill()

	if s.fontFace != nil {
		if initial := profileInitial(profile.Name); initial != "" {
			dc.SetFontFace(s.fontFace)
			dc.SetColor(color.White)
			tw, th := dc.MeasureString(initial)
			dc.DrawString(initial, size/2-tw/2, size/2+th/2)
		}
	}

	path := filepath.Join(s.outDir, "mood_swatch.png")
	if err := dc.SavePNG(path); err != nil {
		return "", fmt.Errorf("save mood swatch: %w", err)
	}
	s.log.Info("Mood swatch rendered", "path", path)
	return path, nil
}

func parseMoodColour(s string) (color.NRGBA, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "#"))
	if len(s) != 6 {
		return color.NRGBA{}, fmt.Errorf("expected 6 hex chars")
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex: %w", err)
	}
	return color.NRGBA{R: raw[0], G: raw[1], B: raw[2], A: 0xFF}, nil
}

func darken(c color.NRGBA, factor float64) color.NRGBA {
	return color.NRGBA{
		R: uint8(float64(c.R) * factor),
		G: uint8(float64(c.G) * factor),
		B: uint8(float64(c.B) * factor),
		A: c.A,
	}
}

func profileInitial(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	r, _ := utf8.DecodeRuneInString(name)
	return strings.ToUpper(string(r))
}

func loadFontFace(fontPath string, size float64) (font.Face, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("read font file: %w", err)
	}
	parsedFont, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("parse TTF: %w", err)
	}
	return truetype.NewFace(parsedFont, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	}), nil
}
