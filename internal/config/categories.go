package config

// Command categories as shown by /help, lower weight first.
const (
	CategoryInformation = "🕯️ Information"
	CategoryMusic       = "🎵 Music"
	CategoryVoice       = "🔊 Voice"
	CategoryAdmin       = "🛠️ Administration"
)

var CategoryWeights = map[string]int{
	CategoryInformation: 0,
	CategoryMusic:       10,
	CategoryVoice:       20,
	CategoryAdmin:       60,
}
