package image

import (
	"bytes"
	"context"
	"errors"
	stdimage "image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"

	"storyboard/internal/domain"
)

// SyntheticGenerator renders deterministic placeholder artwork locally. It needs
// no credentials and is the default provider for development.
type SyntheticGenerator struct{}

func NewSyntheticGenerator() *SyntheticGenerator { return &SyntheticGenerator{} }

var errEmptyDescription = errors.New("description is required")

func (g *SyntheticGenerator) ID() ProviderID { return ProviderSynthetic }

func (g *SyntheticGenerator) Available() bool { return true }

func (g *SyntheticGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.ClassifyProviderError(string(ProviderSynthetic), err)
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, domain.NewProviderError(domain.ErrProviderFailure, string(ProviderSynthetic), errEmptyDescription)
	}
	width, height := AspectRatioDimensions(req.AspectRatio)
	seed := deterministicHexSeed(req.Description, req.Role, req.Style, req.Color)
	data, err := renderSyntheticImage(width, height, seed)
	if err != nil {
		return nil, domain.NewProviderError(domain.ErrProviderFailure, string(ProviderSynthetic), err)
	}
	return &Asset{
		Format: "image/png",
		Width:  width,
		Height: height,
		Data:   data,
		Metadata: map[string]any{
			"seed": seed,
		},
	}, nil
}

var _ Generator = (*SyntheticGenerator)(nil)

func renderSyntheticImage(width, height int, seed string) ([]byte, error) {
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &stdimage.Uniform{C: base}, stdimage.Point{}, draw.Src)

	stripeHeight := max(32, height/12)
	for y := 0; y < height; y += stripeHeight * 2 {
		stripe := stdimage.Rect(0, y, width, min(height, y+stripeHeight))
		draw.Draw(img, stripe, &stdimage.Uniform{C: accent}, stdimage.Point{}, draw.Over)
	}

	diagonal := colorFromSeed(seed, 2)
	for x := 0; x < max(width, height); x += max(16, width/32) {
		for y := 0; y < height && x+y < width; y++ {
			img.Set(x+y, y, diagonal)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: hexByte(segment[0:2]), G: hexByte(segment[2:4]), B: hexByte(segment[4:6]), A: 255}
}

func hexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}
