package leveling

import "medquest/models"

const (
	defaultMaxLevel = 50
	defaultBaseXP   = 100.0
)

// Progress is the position of a total XP amount on a track's curve.
type Progress struct {
	Level         int `json:"level"`
	CurrentXP     int `json:"currentXP"`
	XPToNextLevel int `json:"xpToNextLevel"`
}

// Config holds the curve parameters
type Config struct {
	MaxLevel    int                      `yaml:"maxLevel" json:"max_level"`
	BaseXP      float64                  `yaml:"baseXP" json:"base_xp"`
	Multipliers map[models.Track]float64 `yaml:"multipliers" json:"multipliers"`
}

// DefaultConfig returns the production curves. Clinical cases level slowest,
// flashcards fastest.
func DefaultConfig() *Config {
	return &Config{
		MaxLevel: defaultMaxLevel,
		BaseXP:   defaultBaseXP,
		Multipliers: map[models.Track]float64{
			models.TrackClinicalCases: 1.2,
			models.TrackQuestions:     1.15,
			models.TrackFlashcards:    1.1,
		},
	}
}

// Calculator maps between XP and levels and computes activity awards.
// The curve is tabulated at construction; Config must not change afterwards.
type Calculator struct {
	Config *Config
	costs  map[models.Track][]int
}

// New creates a Calculator. A nil config selects DefaultConfig.
func New(config *Config) *Calculator {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxLevel < 1 {
		config.MaxLevel = defaultMaxLevel
	}
	c := &Calculator{Config: config, costs: make(map[models.Track][]int)}
	for _, track := range models.AllTracks() {
		table := make([]int, config.MaxLevel+2)
		for level := 2; level < len(table); level++ {
			table[level] = floorPow(config.BaseXP, c.multiplier(track), level-1)
		}
		c.costs[track] = table
	}
	return c
}

func (c *Calculator) multiplier(track models.Track) float64 {
	if m, ok := c.Config.Multipliers[track]; ok {
		return m
	}
	return 1
}

// MaxLevel is the hard level cap.
func (c *Calculator) MaxLevel() int {
	return c.Config.MaxLevel
}

// XPRequiredForLevel returns the XP needed to advance from level-1 to level.
func (c *Calculator) XPRequiredForLevel(level int, track models.Track) int {
	if level <= 1 {
		return 0
	}
	if table, ok := c.costs[track]; ok && level < len(table) {
		return table[level]
	}
	return floorPow(c.Config.BaseXP, c.multiplier(track), level-1)
}

// TotalXPForLevel is the cumulative XP needed to reach level from zero.
func (c *Calculator) TotalXPForLevel(level int, track models.Track) int {
	total := 0
	for l := 2; l <= level; l++ {
		total += c.XPRequiredForLevel(l, track)
	}
	return total
}

// LevelFromTotalXP walks the curve from level 1 consuming level costs while
// they fit. At the cap the remainder stays in CurrentXP and XPToNextLevel is 0.
func (c *Calculator) LevelFromTotalXP(totalXP int, track models.Track) Progress {
	if totalXP < 0 {
		totalXP = 0
	}
	level := 1
	remaining := totalXP
	for level < c.Config.MaxLevel {
		cost := c.XPRequiredForLevel(level+1, track)
		if remaining < cost {
			break
		}
		remaining -= cost
		level++
	}

	p := Progress{Level: level, CurrentXP: remaining}
	if level < c.Config.MaxLevel {
		p.XPToNextLevel = c.XPRequiredForLevel(level+1, track) - remaining
	}
	return p
}
