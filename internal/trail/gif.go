package trail

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"os"
	"sort"

	"github.com/nfnt/resize"
)

// encodeGIF writes frames as an animated GIF scaled to maxWidth. delay is in 100ths of a
// second per frame. It returns the file size.
func encodeGIF(frames []image.Image, outputPath string, maxWidth uint, delay int) (int64, error) {
	if len(frames) == 0 {
		return 0, nil
	}
	if maxWidth == 0 {
		maxWidth = 800
	}
	if delay <= 0 {
		delay = 200
	}

	g := &gif.GIF{
		Image:     make([]*image.Paletted, len(frames)),
		Delay:     make([]int, len(frames)),
		LoopCount: 0,
	}

	palette := generatePalette(frames)

	for i, frame := range frames {
		bounds := frame.Bounds()
		width := maxWidth
		if uint(bounds.Dx()) < width {
			width = uint(bounds.Dx())
		}
		height := uint(float64(width) * float64(bounds.Dy()) / float64(bounds.Dx()))
		resized := resize.Resize(width, height, frame, resize.Lanczos3)

		paletted := image.NewPaletted(resized.Bounds(), palette)
		draw.FloydSteinberg.Draw(paletted, resized.Bounds(), resized, image.Point{})

		g.Image[i] = paletted
		g.Delay[i] = delay
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create trail: %w", err)
	}
	defer f.Close()

	if err := gif.EncodeAll(f, g); err != nil {
		return 0, fmt.Errorf("failed to encode trail: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// generatePalette builds one 256-color palette shared by all frames. The tier colors are
// always present so the highlight boxes survive quantization.
func generatePalette(frames []image.Image) color.Palette {
	colorMap := make(map[color.RGBA]int)

	step := 4
	for _, img := range frames {
		bounds := img.Bounds()
		for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
			for x := bounds.Min.X; x < bounds.Max.X; x += step {
				r, g, b, _ := img.At(x, y).RGBA()
				// 5 bits per channel merges near-identical anti-aliased shades
				c := color.RGBA{R: uint8(r>>8) &^ 7, G: uint8(g>>8) &^ 7, B: uint8(b>>8) &^ 7, A: 255}
				colorMap[c]++
			}
		}
	}

	type colorCount struct {
		c     color.RGBA
		count int
	}
	colors := make([]colorCount, 0, len(colorMap))
	for c, count := range colorMap {
		colors = append(colors, colorCount{c, count})
	}
	sort.Slice(colors, func(i, j int) bool {
		if colors[i].count != colors[j].count {
			return colors[i].count > colors[j].count
		}
		return colorKey(colors[i].c) < colorKey(colors[j].c)
	})

	palette := make(color.Palette, 0, 256)
	tiers := make([]color.RGBA, 0, len(tierColors))
	for _, c := range tierColors {
		tiers = append(tiers, c)
	}
	sort.Slice(tiers, func(i, j int) bool { return colorKey(tiers[i]) < colorKey(tiers[j]) })
	for _, c := range tiers {
		palette = append(palette, c)
	}

	for i := 0; i < len(colors) && len(palette) < 256; i++ {
		palette = append(palette, colors[i].c)
	}

	for len(palette) < 256 {
		gray := uint8(len(palette))
		palette = append(palette, color.RGBA{gray, gray, gray, 255})
	}
	return palette
}

func colorKey(c color.RGBA) uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}
