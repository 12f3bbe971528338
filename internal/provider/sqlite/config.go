package sqlite

// Config holds the settings for the local SQLite run store.
type Config struct {
	Path         string `yaml:"path" json:"path"`
	RetentionTTL string `yaml:"retentionTTL,omitempty" json:"retentionTTL,omitempty"`
}
