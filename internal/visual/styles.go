package visual

import (
	"strings"

	"github.com/jonathan/ink-prompts/internal/types"
)

// Art styles
const (
	StyleMinimalistGeometric     types.ArtStyle = "minimalist-geometric"
	StyleSurrealistDreamscape    types.ArtStyle = "surrealist-dreamscape"
	StyleAbstractExpressionism   types.ArtStyle = "abstract-expressionism"
	StyleContemporaryDigital     types.ArtStyle = "contemporary-digital"
	StyleWatercolorImpressionism types.ArtStyle = "watercolor-impressionism"
	StyleBoldEditorial           types.ArtStyle = "bold-editorial"
	StyleNeoBrutalism            types.ArtStyle = "neo-brutalism"
	StyleEtherealGradient        types.ArtStyle = "ethereal-gradient"
)

type styleSpec struct {
	Description string
	Modifiers   string
}

// ArtStyles lists every style in selection order.
var ArtStyles = []types.ArtStyle{
	StyleMinimalistGeometric,
	StyleSurrealistDreamscape,
	StyleAbstractExpressionism,
	StyleContemporaryDigital,
	StyleWatercolorImpressionism,
	StyleBoldEditorial,
	StyleNeoBrutalism,
	StyleEtherealGradient,
}

var styleSpecs = map[types.ArtStyle]styleSpec{
	StyleMinimalistGeometric:     {"clean lines, simple shapes, a limited palette and generous negative space", "minimalist, geometric, bauhaus inspired"},
	StyleSurrealistDreamscape:    {"dream-like scenes, unexpected juxtapositions, softly melting forms", "surrealist, dreamlike, impossible geometry"},
	StyleAbstractExpressionism:   {"bold brushwork, emotional intensity, non-representational forms", "abstract expressionist, gestural strokes, raw energy"},
	StyleContemporaryDigital:     {"modern digital art with gradients, glitch textures and neon accents", "digital art, glitch, neon highlights"},
	StyleWatercolorImpressionism: {"soft edges, flowing colour, attention to light and atmosphere", "watercolour, impressionist, soft and luminous"},
	StyleBoldEditorial:           {"magazine illustration with high contrast and strong graphic shapes", "editorial illustration, graphic, high contrast"},
	StyleNeoBrutalism:            {"raw, unpolished compositions with chunky shapes and loud colour", "neo-brutalist, chunky, unconventional"},
	StyleEtherealGradient:        {"soft gradients and celestial light, calm and contemplative", "gradient, celestial, aurora-like, flowing"},
}

// IsValidStyle reports whether s is one of ArtStyles.
func IsValidStyle(s types.ArtStyle) bool {
	_, ok := styleSpecs[s]
	return ok
}

// topicMoods maps a keyword found in the topic to mood words.
var topicMoods = []struct {
	keyword string
	moods   []string
}{
	{"technology", []string{"futuristic", "cool blue", "circuit-like"}},
	{"philosophy", []string{"contemplative", "deep", "infinite"}},
	{"emotion", []string{"warm", "turbulent", "flowing"}},
	{"society", []string{"interconnected", "urban", "textured"}},
	{"creativ", []string{"vibrant", "playful", "explosive"}},
	{"spiritual", []string{"luminous", "peaceful", "transcendent"}},
	{"relationship", []string{"intimate", "tender", "intertwined"}},
	{"business", []string{"structured", "ambitious", "ascending"}},
	{"health", []string{"organic", "vital", "balanced"}},
	{"culture", []string{"rich", "layered", "diverse"}},
}

var defaultMoods = []string{"evocative", "thought-provoking", "layered"}

func moodFor(topic string) string {
	lower := strings.ToLower(topic)
	for _, tm := range topicMoods {
		if strings.Contains(lower, tm.keyword) {
			return strings.Join(tm.moods, ", ")
		}
	}
	return strings.Join(defaultMoods, ", ")
}
