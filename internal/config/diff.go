package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	GuidesChanged   bool        // true if any guide persona or voice changed
	GuideChanges    []GuideDiff // per-guide diffs
	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// GuideDiff describes what changed for a single guide between two configs.
type GuideDiff struct {
	ID                  string
	InstructionsChanged bool
	VoiceChanged        bool
	Added               bool
	Removed             bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Build guide lookup maps keyed by ID.
	oldGuides := make(map[string]*GuideConfig, len(old.Guides))
	for i := range old.Guides {
		oldGuides[old.Guides[i].ID] = &old.Guides[i]
	}
	newGuides := make(map[string]*GuideConfig, len(new.Guides))
	for i := range new.Guides {
		newGuides[new.Guides[i].ID] = &new.Guides[i]
	}

	// Detect modified and removed guides.
	for id, oldGuide := range oldGuides {
		newGuide, exists := newGuides[id]
		if !exists {
			d.GuideChanges = append(d.GuideChanges, GuideDiff{
				ID:      id,
				Removed: true,
			})
			d.GuidesChanged = true
			continue
		}
		gd := diffGuide(id, oldGuide, newGuide)
		if gd.InstructionsChanged || gd.VoiceChanged {
			d.GuideChanges = append(d.GuideChanges, gd)
			d.GuidesChanged = true
		}
	}

	// Detect added guides.
	for id := range newGuides {
		if _, exists := oldGuides[id]; !exists {
			d.GuideChanges = append(d.GuideChanges, GuideDiff{
				ID:    id,
				Added: true,
			})
			d.GuidesChanged = true
		}
	}

	return d
}

// diffGuide compares two guide configs with the same ID.
func diffGuide(id string, old, new *GuideConfig) GuideDiff {
	gd := GuideDiff{ID: id}

	if old.Instructions != new.Instructions {
		gd.InstructionsChanged = true
	}
	if old.Voice != new.Voice {
		gd.VoiceChanged = true
	}

	return gd
}
