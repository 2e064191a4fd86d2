package store

// schema is applied in order by Migrate
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		username VARCHAR(50) UNIQUE NOT NULL,
		email VARCHAR(100) UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_login TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS user_settings (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		setting_name VARCHAR(50) NOT NULL,
		setting_value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS detection_sessions (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		start_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		end_time TIMESTAMPTZ,
		duration_seconds DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS detections (
		id BIGSERIAL PRIMARY KEY,
		session_id INTEGER NOT NULL REFERENCES detection_sessions(id) ON DELETE CASCADE,
		object_type VARCHAR(50) NOT NULL,
		blur_method VARCHAR(50),
		confidence DOUBLE PRECISION,
		detected_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_detections_session ON detections (session_id, object_type)`,
	`CREATE TABLE IF NOT EXISTS blur_rule_presets (
		id SERIAL PRIMARY KEY,
		name VARCHAR(100) UNIQUE NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		rules JSONB NOT NULL,
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS keyword_lists (
		id SERIAL PRIMARY KEY,
		name VARCHAR(100) UNIQUE NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		keywords JSONB NOT NULL,
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// DefaultBlurRulePresets are inserted by SeedDefaults
func DefaultBlurRulePresets() []BlurRulePreset {
	return []BlurRulePreset{
		{
			Name:        "Default Privacy",
			Description: "Default privacy settings for general use",
			Rules: RuleMap{
				"face":          "pixelate",
				"document":      "gaussian",
				"credit_card":   "pixelate",
				"license_plate": "pixelate",
				"screen":        "edge_preserving",
				"text":          "gaussian",
			},
			IsDefault: true,
		},
		{
			Name:        "High Privacy",
			Description: "Maximum privacy settings with pixelation for all objects",
			Rules: RuleMap{
				"face":          "pixelate",
				"document":      "pixelate",
				"credit_card":   "pixelate",
				"license_plate": "pixelate",
				"screen":        "pixelate",
				"text":          "pixelate",
			},
		},
		{
			Name:        "Professional Call",
			Description: "Settings for professional video calls with face visible",
			Rules: RuleMap{
				"face":          "none",
				"document":      "gaussian",
				"credit_card":   "pixelate",
				"license_plate": "pixelate",
				"screen":        "edge_preserving",
				"text":          "gaussian",
			},
		},
	}
}

// DefaultKeywordLists are inserted by SeedDefaults
func DefaultKeywordLists() []KeywordList {
	return []KeywordList{
		{
			Name:        "Standard Keywords",
			Description: "Standard set of sensitive keywords",
			Keywords: WordList{
				"confidential", "private", "secret", "password",
				"visa", "mastercard", "american express", "cvv",
				"ssn", "social security", "classified",
			},
			IsDefault: true,
		},
		{
			Name:        "Financial Keywords",
			Description: "Keywords related to financial information",
			Keywords: WordList{
				"account number", "routing number", "pin", "balance",
				"statement", "credit score", "loan", "mortgage", "investment",
				"tax id", "ein", "w2", "w-2", "1099", "bank account",
			},
		},
		{
			Name:        "Healthcare Keywords",
			Description: "Keywords related to healthcare information (HIPAA)",
			Keywords: WordList{
				"patient", "diagnosis", "medical record", "prescription",
				"treatment", "symptoms", "health insurance", "hipaa",
				"doctor", "hospital", "medical id", "medication",
			},
		},
	}
}
