package connection

import (
	"fmt"
	"math/rand/v2"
)

// adjectives and nouns form the human-readable hostname captain assigns an
// instance when the caller doesn't supply one (spec.md doesn't require
// Hostname — it's passed straight through to container.Config.Hostname,
// which is cosmetic, so it doesn't need uuid-grade uniqueness the way the
// container name suffix does).
var adjectives = []string{
	"amber", "azure", "bold", "calm", "cedar", "clean", "clear",
	"crisp", "dawn", "dusk", "emerald", "fair", "firm", "fleet",
	"frost", "gold", "grand", "green", "grey", "iron", "jade",
	"keen", "lark", "lean", "light", "lunar", "maple", "mist",
	"noble", "north", "oak", "onyx", "open", "peak", "pine",
	"plain", "prime", "quick", "quiet", "rapid", "regal", "ridge",
	"river", "rose", "ruby", "sage", "sand", "sharp", "shore",
	"silk", "silver", "slate", "solar", "solid", "stark", "steel",
	"stone", "storm", "swift", "teal", "terra", "tidal", "true",
	"vale", "vast", "warm", "white", "wild", "wind",
}

var nouns = []string{
	"arc", "bay", "beam", "bird", "blade", "bloom", "bolt", "bond",
	"brook", "cliff", "cloud", "coast", "core", "crest", "crow",
	"dale", "dawn", "delta", "dune", "dust", "echo", "edge", "fern",
	"field", "flame", "flare", "fleet", "flow", "fog", "ford",
	"forge", "fox", "frost", "gale", "gate", "glen", "grove", "gust",
	"hawk", "hill", "horizon", "isle", "keep", "lake", "lark", "leaf",
	"light", "line", "lynx", "mast", "mesa", "mill", "mist", "moon",
	"moss", "mount", "node", "ore", "path", "peak", "pine", "plain",
	"pond", "pool", "port", "pulse", "ridge", "rift", "rise", "river",
	"rock", "root", "run", "sand", "seed", "shore", "sky", "slope",
	"snow", "sol", "spark", "spire", "spring", "star", "stem", "step",
	"stone", "stream", "sun", "surf", "surge", "tide", "trail", "tree",
	"vale", "veil", "vine", "wake", "wave", "wind", "wing", "wood",
}

// generateHostname returns a memorable "adjective-noun-xxxx" hostname, used
// as StartInstance's default when the caller leaves Hostname empty.
func generateHostname() string {
	adjective := adjectives[rand.IntN(len(adjectives))]
	noun := nouns[rand.IntN(len(nouns))]
	suffix := rand.Uint32() & 0xFFFF
	return fmt.Sprintf("%s-%s-%04x", adjective, noun, suffix)
}
