package diagnosis

import (
	"sort"
	"strings"
)

const (
	HealthyLabel       = "healthy"
	UnknownDescription = "Unknown condition:\nPlease verify the diagnosis or input value."
)

var diseases = map[string]string{
	"aphid":                "Aphid:\nSmall sap-sucking insects causing yellowing and stunted growth.\nMonitor for rapid spread.",
	"black rust":           "Black Rust:\nFungal disease with dark, rust-colored pustules.\nCan weaken the plant if untreated.",
	"blast":                "Blast:\nFungal infection that forms lesions on leaves and spikes.\nMay lead to reduced yield.",
	"brown rust":           "Brown Rust:\nRust-colored spots on leaves reduce photosynthesis.\nEarly detection is important.",
	"common root rot":      "Common Root Rot:\nFungal disease attacking the roots.\nLeads to poor nutrient uptake and stunted growth.",
	"fusarium head blight": "Fusarium Head Blight:\nAffects wheat heads, causing shriveled kernels.\nRisk of mycotoxin contamination.",
	"healthy":              "Healthy:\nThe wheat plant shows no disease symptoms.\nKeep up regular monitoring.",
	"leaf blight":          "Leaf Blight:\nCauses necrotic lesions on leaves.\nReduces overall plant vigor if severe.",
	"mildew":               "Mildew:\nFungal infection with a powdery white coating on leaves.\nMay affect photosynthesis if widespread.",
	"mite":                 "Mite:\nTiny pests feeding on plant sap.\nResults in discoloration and potential leaf drop.",
	"septoria":             "Septoria:\nFungal leaf spot disease with dark lesions.\nCan lead to early defoliation.",
	"smut":                 "Smut:\nFungal disease producing dark, powdery spores on grains.\nAffects grain quality and yield.",
	"stem fly":             "Stem fly:\nInsect pest that damages stems.\nMay cause lodging and weakened plant structure.",
	"tan spot":             "Tan spot:\nCauses tan lesions on leaves that may merge.\nSignificantly reduces photosynthetic area.",
	"yellow rust":          "Yellow Rust:\nFungal infection with yellowish pustules on leaves.\nReduces overall plant vigor.",
}

// Entry is one row of the disease table.
type Entry struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Describe returns the two-line description for a label. Matching is exact
// after lowercasing; anything else gets the unknown fallback.
func Describe(label string) string {
	if d, ok := diseases[strings.ToLower(label)]; ok {
		return d
	}
	return UnknownDescription
}

// Known reports whether the label is one of the table keys.
func Known(label string) bool {
	_, ok := diseases[strings.ToLower(label)]
	return ok
}

// Header is the single result line shown above the description.
func Header(label string) string {
	normalized := strings.ToLower(label)
	if normalized == HealthyLabel {
		return "Healthy"
	}
	return "Disease: " + normalized
}

// Entries returns the table sorted by label.
func Entries() []Entry {
	entries := make([]Entry, 0, len(diseases))
	for label, description := range diseases {
		entries = append(entries, Entry{Label: label, Description: description})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Label < entries[j].Label
	})
	return entries
}
