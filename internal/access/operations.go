package access

import "strings"

// Class is how an operation is metered.
type Class int

const (
	ClassUnclassified Class = iota
	ClassUnlimited
	ClassLimited
)

func (c Class) String() string {
	switch c {
	case ClassUnlimited:
		return "unlimited"
	case ClassLimited:
		return "limited"
	default:
		return "unclassified"
	}
}

// DefaultUnlimited are operations every user may run without spending quota.
var DefaultUnlimited = []string{
	"help", "limits", "join", "leave", "247mode", "radio",
	"toplisteners", "compareplaycount",
	"shufflequeue", "shuffle", "clearqueue", "clear", "loop",
	"play", "pause", "resume", "stop",
}

// DefaultLimited are operations that spend daily quota for normal users.
var DefaultLimited = []string{
	"skip", "volume", "seek", "move", "lyrics", "nowplaying", "queue",
	"equalizer", "filter", "dj", "genre", "mood",
	"playytlive", "playytpodcast", "addtoplaylist", "removefromplaylist",
	"history", "soundboard", "recommendmusic",
}

// Operations classifies operation names. Names are matched case-insensitively.
type Operations struct {
	unlimited map[string]struct{}
	limited   map[string]struct{}
}

func NewOperations(unlimited, limited []string) *Operations {
	o := &Operations{
		unlimited: make(map[string]struct{}, len(unlimited)),
		limited:   make(map[string]struct{}, len(limited)),
	}
	for _, op := range unlimited {
		o.unlimited[strings.ToLower(op)] = struct{}{}
	}
	for _, op := range limited {
		o.limited[strings.ToLower(op)] = struct{}{}
	}
	return o
}

func DefaultOperations() *Operations {
	return NewOperations(DefaultUnlimited, DefaultLimited)
}

// Classify checks the unlimited set first, so an operation listed in both is unlimited.
func (o *Operations) Classify(op string) Class {
	op = strings.ToLower(op)
	if _, ok := o.unlimited[op]; ok {
		return ClassUnlimited
	}
	if _, ok := o.limited[op]; ok {
		return ClassLimited
	}
	return ClassUnclassified
}
