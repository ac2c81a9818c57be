package image

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"storyboard/internal/domain"
)

// DefaultNegativePrompt captures undesirable artefacts we want the model to avoid.
const DefaultNegativePrompt = "low quality, blurry, distorted, incorrect anatomy, extra limbs, text, captions, speech bubbles, watermark"

// BuildIllustrationPrompt turns a scene or symbol description into a text-to-image
// instruction carrying the job's style, colour and quality settings.
func BuildIllustrationPrompt(req GenerateRequest) string {
	var lines []string

	description := strings.TrimSpace(req.Description)
	if req.Role == RoleSymbol {
		lines = append(lines, fmt.Sprintf("Create a single symbolic image that captures: %s.", strings.TrimSuffix(description, ".")))
	} else {
		lines = append(lines, fmt.Sprintf("Create a storyboard frame illustrating this scene: %s.", strings.TrimSuffix(description, ".")))
	}

	switch req.Style {
	case domain.StyleSymbolic:
		lines = append(lines, "Visual style: minimalist symbolic artwork with bold shapes and strong iconography.")
	case domain.StyleDual:
		if req.Role == RoleSymbol {
			lines = append(lines, "Visual style: minimalist emblem on a plain background.")
		} else {
			lines = append(lines, "Visual style: cinematic digital painting with natural lighting.")
		}
	default:
		lines = append(lines, "Visual style: cinematic storyboard illustration with clear staging.")
	}

	if c := strings.TrimSpace(req.Color); c != "" {
		lines = append(lines, fmt.Sprintf("Colour palette: %s.", c))
	}

	switch strings.ToLower(strings.TrimSpace(req.Quality)) {
	case "hd", "high":
		lines = append(lines, "Render with high detail, crisp edges and polished lighting.")
	case "draft", "low":
		lines = append(lines, "Render as a quick rough sketch with simple shading.")
	default:
		lines = append(lines, "Render with clean composition and balanced lighting.")
	}

	lines = append(lines, "Do not include any text, captions or speech bubbles.")
	return strings.Join(lines, "\n")
}

// AspectRatioSize maps an aspect ratio to the size token accepted by qwen-image.
func AspectRatioSize(aspect string) string {
	switch strings.TrimSpace(aspect) {
	case "16:9":
		return "1664*928"
	case "4:3":
		return "1472*1104"
	case "3:4":
		return "1140*1472"
	case "9:16":
		return "928*1664"
	default:
		return "1328*1328"
	}
}

// TaskSize maps an aspect ratio to a size accepted by the wanx task API.
func TaskSize(aspect string) string {
	switch strings.TrimSpace(aspect) {
	case "16:9":
		return "1280*720"
	case "9:16":
		return "720*1280"
	case "4:3":
		return "1152*864"
	case "3:4":
		return "864*1152"
	default:
		return "1024*1024"
	}
}

// AspectRatioDimensions returns pixel dimensions for locally rendered images.
func AspectRatioDimensions(aspect string) (int, int) {
	switch strings.TrimSpace(strings.ToLower(aspect)) {
	case "16:9":
		return 960, 540
	case "9:16":
		return 540, 960
	case "4:3":
		return 800, 600
	case "3:4":
		return 600, 800
	case "1:1", "square", "":
		return 768, 768
	default:
		parts := strings.Split(aspect, ":")
		if len(parts) == 2 {
			a, errA := strconv.Atoi(strings.TrimSpace(parts[0]))
			b, errB := strconv.Atoi(strings.TrimSpace(parts[1]))
			if errA == nil && errB == nil && a > 0 && b > 0 {
				width := 768
				return width, width * b / a
			}
		}
		return 768, 768
	}
}

func seedDigest(values ...any) [32]byte {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, fmt.Sprint(v))
	}
	return sha256.Sum256([]byte(strings.Join(parts, "|")))
}

// deterministicSeed derives a positive 31-bit seed so retries of the same
// request render the same image.
func deterministicSeed(values ...any) int {
	sum := seedDigest(values...)
	value := int(binary.BigEndian.Uint32(sum[:4]) % 2147483647)
	if value <= 0 {
		fallback := int(binary.BigEndian.Uint32(sum[4:8]) % 2147483647)
		if fallback == 0 {
			fallback = 1
		}
		value = fallback
	}
	return value
}

func deterministicHexSeed(values ...any) string {
	sum := seedDigest(values...)
	return hex.EncodeToString(sum[:])[:16]
}

func normalizeFormat(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "image/jpeg", "image/jpg":
		return "image/jpeg"
	case "image/png":
		return "image/png"
	default:
		if strings.HasPrefix(mime, "image/") {
			return mime
		}
		return "image/png"
	}
}
