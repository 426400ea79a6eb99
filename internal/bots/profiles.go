// internal/bots/profiles.go
package bots

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jason-s-yu/joinly/internal/models"
)

// DefaultProfile is used for unknown profile names.
const DefaultProfile = "default"

var nameSuffixes = []string{"Alpha", "Beta", "Gamma", "Delta", "Epsilon", "Zeta", "Eta", "Theta"}

// Profile is a bot template. Each bot rolls its skill inside
// [SkillMin, SkillMax] and gets a generated name.
type Profile struct {
	Name       string                 `json:"name" yaml:"name"`
	SkillMin   int                    `json:"skill_min" yaml:"skill_min"`
	SkillMax   int                    `json:"skill_max" yaml:"skill_max"`
	Behavior   models.Behavior        `json:"behavior" yaml:"behavior"`
	AutoReady  bool                   `json:"auto_ready" yaml:"auto_ready"`
	ReadyDelay time.Duration          `json:"ready_delay" yaml:"ready_delay"`
	Metadata   map[string]interface{} `json:"metadata" yaml:"metadata"`
}

func builtinProfiles() []Profile {
	return []Profile{
		{Name: "default", SkillMin: 1000, SkillMax: 1000, Behavior: models.BehaviorNormal, AutoReady: true, ReadyDelay: 2 * time.Second},
		{Name: "beginner", SkillMin: 500, SkillMax: 800, Behavior: models.BehaviorPassive, AutoReady: true, ReadyDelay: 3 * time.Second,
			Metadata: map[string]interface{}{"difficulty": "easy"}},
		{Name: "intermediate", SkillMin: 900, SkillMax: 1200, Behavior: models.BehaviorNormal, AutoReady: true, ReadyDelay: 2 * time.Second,
			Metadata: map[string]interface{}{"difficulty": "medium"}},
		{Name: "expert", SkillMin: 1400, SkillMax: 1800, Behavior: models.BehaviorAggressive, AutoReady: true, ReadyDelay: time.Second,
			Metadata: map[string]interface{}{"difficulty": "hard"}},
		{Name: "master", SkillMin: 1900, SkillMax: 2500, Behavior: models.BehaviorAggressive, AutoReady: true, ReadyDelay: 500 * time.Millisecond,
			Metadata: map[string]interface{}{"difficulty": "expert"}},
	}
}

// Library holds the named bot profiles.
type Library struct {
	mu       sync.Mutex
	profiles map[string]Profile
	rng      *rand.Rand
}

// NewLibrary returns a library with the built-in profiles.
func NewLibrary(seed int64) *Library {
	l := &Library{
		profiles: make(map[string]Profile),
		rng:      rand.New(rand.NewSource(seed)),
	}
	for _, p := range builtinProfiles() {
		l.profiles[p.Name] = p
	}
	return l
}

// Add registers or replaces a profile.
func (l *Library) Add(p Profile) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p.SkillMax < p.SkillMin {
		p.SkillMax = p.SkillMin
	}
	p.Behavior = models.ParseBehavior(string(p.Behavior))
	l.profiles[p.Name] = p
}

func (l *Library) Has(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.profiles[name]
	return ok
}

// Names lists the profile names in order.
func (l *Library) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.profiles))
	for name := range l.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns a copy of every profile.
func (l *Library) All() map[string]Profile {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]Profile, len(l.profiles))
	for k, v := range l.profiles {
		out[k] = v
	}
	return out
}

// Get rolls a concrete bot profile from the named template. Unknown names
// use the default template.
func (l *Library) Get(name string) models.BotProfile {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.profiles[name]
	if !ok {
		p = l.profiles[DefaultProfile]
	}
	skill := p.SkillMin
	if p.SkillMax > p.SkillMin {
		skill += l.rng.Intn(p.SkillMax - p.SkillMin + 1)
	}
	metadata := make(map[string]interface{}, len(p.Metadata)+1)
	for k, v := range p.Metadata {
		metadata[k] = v
	}
	metadata["profile"] = p.Name
	return models.BotProfile{
		Username:    l.nameUnsafe(p.Name),
		SkillRating: skill,
		Behavior:    p.Behavior,
		AutoReady:   p.AutoReady,
		ReadyDelay:  p.ReadyDelay,
		Metadata:    metadata,
	}
}

// Random rolls a profile from a randomly chosen template.
func (l *Library) Random() models.BotProfile {
	names := l.Names()
	l.mu.Lock()
	name := names[l.rng.Intn(len(names))]
	l.mu.Unlock()
	return l.Get(name)
}

// roll draws the value used to sample random-behavior delays.
func (l *Library) roll() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Float64()
}

// nameUnsafe builds names like "ExpertGamma417".
func (l *Library) nameUnsafe(profile string) string {
	prefix := "Bot"
	if profile != DefaultProfile && profile != "" {
		prefix = strings.ToUpper(profile[:1]) + profile[1:]
	}
	suffix := nameSuffixes[l.rng.Intn(len(nameSuffixes))]
	return fmt.Sprintf("%s%s%d", prefix, suffix, 100+l.rng.Intn(900))
}
