// Package prompts rotates the subject phrase substituted into the generation prompt.
package prompts

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Placeholder is replaced by the rotating subject in Prompt and by
// NegativeSubject in NegativePrompt.
const Placeholder = "$1"

const defaultPrompt = "Imagine a Art Nouveau box label for Fine Coffee with a $1 smile faintly"

const defaultNegativePrompt = "(($1)), ((NSFW)), ((Nude)), ((Nudity)),only a head, Melting, Two heads, no eye, two faces, plastic, deformed, blurry, bad anatomy, bad eyes, crossed eyes, disfigured, poorly drawn face, mutation, mutated, extra limb, ugly, poorly drawn hands, missing limb, floating limbs, disconnected limbs, malformed hands, blur, out of focus, ((long neck)), long body, mutated hands and fingers, out of frame, blender, doll, cropped, low-res, close-up, poorly-drawn face, out of frame double, blurred, too many fingers, repetitive, black and white, grainy, extra limbs, high pass filter, airbrush, portrait, zoomed, soft light, smooth skin, closeup, extra fingers, mutated hands, bad proportions, blind, ugly eyes, dead eyes, vignette, out of shot, gaussian, monochrome, noisy, text, writing, watermark, logo, oversaturation, over saturation, over shadow"

// Book holds the prompt templates and the rotation position.
type Book struct {
	Prompt          string   `yaml:"prompt"`
	NegativePrompt  string   `yaml:"negative_prompt"`
	NegativeSubject string   `yaml:"negative_subject"`
	Subjects        []string `yaml:"subjects"`

	mu  sync.Mutex
	idx int
}

// Default returns the kiosk's built-in prompt book.
func Default() *Book {
	return &Book{
		Prompt:          defaultPrompt,
		NegativePrompt:  defaultNegativePrompt,
		NegativeSubject: "man",
		Subjects: []string{
			"Young Bernadette Peters",
			"Cate Blanchett",
			"Meg Ryan",
			"Drew Barrymore",
		},
	}
}

// New fills empty fields of a configured book from the defaults.
func New(prompt, negative string, subjects []string) *Book {
	b := Default()
	if prompt != "" {
		b.Prompt = prompt
	}
	if negative != "" {
		b.NegativePrompt = negative
	}
	if len(subjects) > 0 {
		b.Subjects = append([]string(nil), subjects...)
	}
	return b
}

// Load reads a prompt book from a YAML file.
func Load(path string) (*Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt book: %w", err)
	}
	var b Book
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse prompt book %s: %w", path, err)
	}
	out := New(b.Prompt, b.NegativePrompt, b.Subjects)
	if b.NegativeSubject != "" {
		out.NegativeSubject = b.NegativeSubject
	}
	return out, nil
}

// Next returns the prompt options for the next submission and advances the rotation.
func (b *Book) Next() map[string]any {
	b.mu.Lock()
	idx := b.idx
	if len(b.Subjects) > 0 {
		b.idx = (b.idx + 1) % len(b.Subjects)
	}
	b.mu.Unlock()

	subject := ""
	if len(b.Subjects) > 0 {
		subject = b.Subjects[idx]
	}

	return map[string]any{
		"prompt":          strings.Replace(b.Prompt, Placeholder, subject, 1),
		"negative_prompt": strings.Replace(b.NegativePrompt, Placeholder, b.NegativeSubject, 1),
	}
}
