package trail

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/v0xg/applypilot/internal/fill"
)

// tierColors distinguish which tier filled a field
var tierColors = map[fill.Tier]color.RGBA{
	fill.TierDOM:        {52, 168, 83, 255},  // green
	fill.TierLLM:        {66, 133, 244, 255}, // blue
	fill.TierEscalation: {234, 67, 53, 255},  // red
}

// box is a highlighted field on a frame, in image pixels
type box struct {
	rect image.Rectangle
	tier fill.Tier
}

// annotate copies frame and outlines every box in its tier color
func annotate(frame image.Image, boxes []box) *image.RGBA {
	bounds := frame.Bounds()
	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, frame, bounds.Min, draw.Src)

	for _, b := range boxes {
		c, ok := tierColors[b.tier]
		if !ok {
			c = color.RGBA{251, 188, 5, 255}
		}
		r := b.rect.Inset(-3)
		for t := 0; t < 2; t++ {
			drawRect(result, r.Inset(t), c)
		}
		drawMarker(result, r.Min.X, r.Min.Y, c)
	}
	return result
}

func drawRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	x1, y1, x2, y2 := r.Min.X, r.Min.Y, r.Max.X-1, r.Max.Y-1
	drawLine(img, x1, y1, x2, y1, c)
	drawLine(img, x2, y1, x2, y2, c)
	drawLine(img, x2, y2, x1, y2, c)
	drawLine(img, x1, y2, x1, y1, c)
}

// drawLine draws a line between two points using Bresenham's algorithm
func drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	dx := abs(x2 - x1)
	dy := abs(y2 - y1)
	sx := 1
	if x1 > x2 {
		sx = -1
	}
	sy := 1
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy

	for {
		setPixelSafe(img, x1, y1, c)
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

// drawMarker draws a filled dot on the box corner so small fields stay visible after downscaling
func drawMarker(img *image.RGBA, x, y int, c color.RGBA) {
	const radius = 5
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if math.Hypot(float64(dx), float64(dy)) <= radius {
				setPixelSafe(img, x+dx, y+dy, c)
			}
		}
	}
}

func setPixelSafe(img *image.RGBA, x, y int, c color.RGBA) {
	if (image.Point{x, y}).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
