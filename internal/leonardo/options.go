package leonardo

import "maps"

// DefaultOptions are the generation settings sent with every job unless overridden.
func DefaultOptions() map[string]any {
	return map[string]any{
		"height":              1280,
		"width":               720,
		"modelId":             "1e60896f-3c26-4296-8ecc-53e2afecc132",
		"alchemy":             false,
		"guidance_scale":      7,
		"highContrast":        true,
		"num_images":          1,
		"photoReal":           false,
		"presetStyle":         "DYNAMIC",
		"promptMagic":         true,
		"promptMagicStrength": 0.25,
		"promptMagicVersion":  "v2",
		"public":              true,
		"scheduler":           "LEONARDO",
		"sd_version":          "SDXL_0_9",
	}
}

// Payload merges layers left to right into a fresh submission body; later
// layers win.
func Payload(layers ...map[string]any) map[string]any {
	out := DefaultOptions()
	for _, l := range layers {
		maps.Copy(out, l)
	}
	return out
}
