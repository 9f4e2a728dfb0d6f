package hue

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Bridge-native value ranges.
const (
	maxBridgeHue = 65535 // hue wraps a full circle over 0–65535
	maxBridgeSB  = 254   // saturation and brightness ceiling
	percentScale = 2.54  // bridge 0–254 to percent 0–100
)

// RGB is a color with 0–255 components.
type RGB struct {
	R, G, B int
}

// HSV is a color with hue in degrees (0–360) and saturation/value in
// percent (0–100).
type HSV struct {
	H, S, V float64
}

// CMYK is a color with 0–100 components.
type CMYK struct {
	C, M, Y, K float64
}

// XYZ is a CIE 1931 tristimulus color (sRGB/D65, 0–100 scale).
type XYZ struct {
	X, Y, Z float64
}

func (c RGB) String() string {
	return fmt.Sprintf("%d,%d,%d", c.R, c.G, c.B)
}

func (c HSV) String() string {
	return fmt.Sprintf("%.0f,%.0f,%.0f", math.Round(c.H), math.Round(c.S), math.Round(c.V))
}

func (c CMYK) String() string {
	return fmt.Sprintf("%.0f,%.0f,%.0f,%.0f", math.Round(c.C), math.Round(c.M), math.Round(c.Y), math.Round(c.K))
}

func (c XYZ) String() string {
	return fmt.Sprintf("%.4f,%.4f,%.4f", c.X, c.Y, c.Z)
}

// RGBToHSV converts an RGB color to HSV.
func RGBToHSV(c RGB) HSV {
	r := clampF(float64(c.R), 0, 255) / 255
	g := clampF(float64(c.G), 0, 255) / 255
	b := clampF(float64(c.B), 0, 255) / 255

	max := math.Max(r, math.Max(g, b))
	min := math.Min(r, math.Min(g, b))
	delta := max - min

	var h float64
	switch {
	case delta == 0:
		h = 0
	case max == r:
		h = 60 * math.Mod((g-b)/delta, 6)
	case max == g:
		h = 60 * ((b-r)/delta + 2)
	default:
		h = 60 * ((r-g)/delta + 4)
	}
	if h < 0 {
		h += 360
	}

	s := 0.0
	if max > 0 {
		s = delta / max * 100
	}
	return HSV{H: h, S: s, V: max * 100}
}

// HSVToRGB converts an HSV color to RGB.
func HSVToRGB(c HSV) RGB {
	h := math.Mod(c.H, 360)
	if h < 0 {
		h += 360
	}
	s := clampF(c.S, 0, 100) / 100
	v := clampF(c.V, 0, 100) / 100

	chroma := v * s
	x := chroma * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - chroma

	var r, g, b float64
	switch int(h / 60) {
	case 0:
		r, g, b = chroma, x, 0
	case 1:
		r, g, b = x, chroma, 0
	case 2:
		r, g, b = 0, chroma, x
	case 3:
		r, g, b = 0, x, chroma
	case 4:
		r, g, b = x, 0, chroma
	default:
		r, g, b = chroma, 0, x
	}

	return RGB{
		R: int(math.Round((r + m) * 255)),
		G: int(math.Round((g + m) * 255)),
		B: int(math.Round((b + m) * 255)),
	}
}

// RGBToCMYK converts an RGB color to CMYK.
func RGBToCMYK(c RGB) CMYK {
	r := clampF(float64(c.R), 0, 255) / 255
	g := clampF(float64(c.G), 0, 255) / 255
	b := clampF(float64(c.B), 0, 255) / 255

	k := 1 - math.Max(r, math.Max(g, b))
	if k == 1 {
		return CMYK{K: 100}
	}
	return CMYK{
		C: (1 - r - k) / (1 - k) * 100,
		M: (1 - g - k) / (1 - k) * 100,
		Y: (1 - b - k) / (1 - k) * 100,
		K: k * 100,
	}
}

// CMYKToRGB converts a CMYK color to RGB.
func CMYKToRGB(c CMYK) RGB {
	cc := clampF(c.C, 0, 100) / 100
	m := clampF(c.M, 0, 100) / 100
	y := clampF(c.Y, 0, 100) / 100
	k := clampF(c.K, 0, 100) / 100

	return RGB{
		R: int(math.Round(255 * (1 - cc) * (1 - k))),
		G: int(math.Round(255 * (1 - m) * (1 - k))),
		B: int(math.Round(255 * (1 - y) * (1 - k))),
	}
}

// RGBToXYZ converts an RGB color to CIE XYZ (sRGB, D65 white point).
func RGBToXYZ(c RGB) XYZ {
	r := srgbToLinear(clampF(float64(c.R), 0, 255) / 255)
	g := srgbToLinear(clampF(float64(c.G), 0, 255) / 255)
	b := srgbToLinear(clampF(float64(c.B), 0, 255) / 255)

	return XYZ{
		X: (r*0.4124 + g*0.3576 + b*0.1805) * 100,
		Y: (r*0.2126 + g*0.7152 + b*0.0722) * 100,
		Z: (r*0.0193 + g*0.1192 + b*0.9505) * 100,
	}
}

// XYZToRGB converts a CIE XYZ color back to RGB. Out-of-gamut values
// are clamped to the representable range.
func XYZToRGB(c XYZ) RGB {
	x := c.X / 100
	y := c.Y / 100
	z := c.Z / 100

	r := x*3.2406 + y*-1.5372 + z*-0.4986
	g := x*-0.9689 + y*1.8758 + z*0.0415
	b := x*0.0557 + y*-0.2040 + z*1.0570

	return RGB{
		R: int(math.Round(clampF(linearToSRGB(r), 0, 1) * 255)),
		G: int(math.Round(clampF(linearToSRGB(g), 0, 1) * 255)),
		B: int(math.Round(clampF(linearToSRGB(b), 0, 1) * 255)),
	}
}

// RGBToHex formats an RGB color as "#RRGGBB".
func RGBToHex(c RGB) string {
	return fmt.Sprintf("#%02X%02X%02X",
		int(clampF(float64(c.R), 0, 255)),
		int(clampF(float64(c.G), 0, 255)),
		int(clampF(float64(c.B), 0, 255)))
}

// HexToRGB parses "#RRGGBB", "RRGGBB" or the short "#RGB" form.
func HexToRGB(s string) (RGB, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return RGB{}, fmt.Errorf("hue: invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("hue: invalid hex color %q", s)
	}
	return RGB{
		R: int(v >> 16 & 0xFF),
		G: int(v >> 8 & 0xFF),
		B: int(v & 0xFF),
	}, nil
}

// RGBToXY converts an RGB color to the bridge's CIE xy chromaticity
// pair using the Wide RGB D65 matrix the bridge applies internally.
// Black carries no chromaticity and is rejected.
func RGBToXY(c RGB) (x, y float64, err error) {
	r := srgbToLinear(clampF(float64(c.R), 0, 255) / 255)
	g := srgbToLinear(clampF(float64(c.G), 0, 255) / 255)
	b := srgbToLinear(clampF(float64(c.B), 0, 255) / 255)

	capX := r*0.664511 + g*0.154324 + b*0.162028
	capY := r*0.283881 + g*0.668433 + b*0.047685
	capZ := r*0.000088 + g*0.072310 + b*0.986039

	sum := capX + capY + capZ
	if sum == 0 {
		return 0, 0, fmt.Errorf("hue: color %s has no chromaticity", c)
	}
	return capX / sum, capY / sum, nil
}

// bridgeToHSV maps native bridge hue/sat/bri onto HSV degrees/percent.
func bridgeToHSV(hue, sat, bri float64) HSV {
	return HSV{
		H: clampF(hue, 0, maxBridgeHue) / maxBridgeHue * 360,
		S: clampF(sat, 0, maxBridgeSB) / percentScale,
		V: clampF(bri, 0, maxBridgeSB) / percentScale,
	}
}

// hsvToBridge maps HSV degrees/percent back onto native bridge values.
func hsvToBridge(c HSV) (hue, sat, bri float64) {
	hue = clampF(math.Round(wrapDegrees(c.H)/360*maxBridgeHue), 0, maxBridgeHue)
	sat = clampF(math.Round(c.S*percentScale), 0, maxBridgeSB)
	bri = clampF(math.Round(c.V*percentScale), 0, maxBridgeSB)
	return hue, sat, bri
}

// briToLevel maps native brightness 0–254 onto percent 0–100.
func briToLevel(bri float64) float64 {
	return clampF(math.Round(bri/percentScale), 0, 100)
}

// levelToBri maps percent 0–100 back onto native brightness 0–254.
func levelToBri(level float64) float64 {
	return clampF(math.Round(level*percentScale), 0, maxBridgeSB)
}

// hueToDegrees maps native hue 0–65535 onto whole degrees 0–360.
func hueToDegrees(hue float64) float64 {
	return math.Round(clampF(hue, 0, maxBridgeHue) / maxBridgeHue * 360)
}

// degreesToHue maps degrees back onto the native 0–65535 range.
func degreesToHue(deg float64) float64 {
	return math.Round(wrapDegrees(deg) / 360 * maxBridgeHue)
}

// wrapDegrees folds an angle into [0, 360]. The upper bound is kept
// closed so hue 65535 round-trips instead of collapsing onto 0.
func wrapDegrees(deg float64) float64 {
	for deg < 0 {
		deg += 360
	}
	for deg > 360 {
		deg -= 360
	}
	return deg
}

// srgbToLinear removes the sRGB gamma from a 0–1 component.
func srgbToLinear(v float64) float64 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return math.Pow((v+0.055)/1.055, 2.4)
}

// linearToSRGB applies the sRGB gamma to a 0–1 component.
func linearToSRGB(v float64) float64 {
	if v <= 0.0031308 {
		return v * 12.92
	}
	return 1.055*math.Pow(v, 1/2.4) - 0.055
}

func clampF(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
