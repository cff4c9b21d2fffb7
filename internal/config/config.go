package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Web         WebConfig
	Database    DatabaseConfig
	Camera      CameraConfig
	Faces       FacesConfig
	Recognition RecognitionConfig
	Reminders   RemindersConfig
	Paths       PathsConfig
	Chat        ChatConfig
	Ollama      OllamaConfig
	LlamaCpp    LlamaCppConfig
	OpenAI      OpenAIConfig
	Gemini      GeminiConfig
	Log         LogConfig
}

type WebConfig struct {
	Host string
	Port int
	// AllowedOrigins lists extra CORS/websocket origins; localhost is always allowed
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Driver       string // "sqlite" (default) or "postgres"
	URL          string // DSN; for sqlite a file path
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// IsPostgres reports whether the relational store is PostgreSQL.
func (c *DatabaseConfig) IsPostgres() bool {
	return c.Driver == "postgres"
}

type CameraConfig struct {
	Mode        string        // "snapshot", "mjpeg" or "dir"
	URL         string        // snapshot or MJPEG stream URL
	Dir         string        // directory of frames for "dir" mode
	ReadTimeout time.Duration // max wait for a single frame (default 5s)
	Interval    time.Duration // pause between recognition cycles (default 200ms)
}

type FacesConfig struct {
	DetectorURL      string  // face embedding server, defaults to http://localhost:5000
	Tolerance        float64 // match threshold, lower is stricter (default 0.5)
	DownsampleFactor float64 // linear scale applied before detection (default 0.25)
	Metric           string  // "euclidean" (default) or "cosine"
	Index            string  // "exact" (default) or "hnsw"
	EncodingsBackend string  // "file" (default) or "pgvector"
	EncodingsFile    string  // gob blob path (default face_encodings.gob)
}

type RecognitionConfig struct {
	VisitCooldown time.Duration // min time between two recorded visits of one person
}

type RemindersConfig struct {
	Interval  time.Duration // sweep period (default 5m)
	Lookahead time.Duration // default 30m
	Debounce  time.Duration // default 15m
}

type PathsConfig struct {
	MemoryDir     string // chat diary and last-seen record
	CaptureDir    string // temporary enrollment captures
	KnownFacesDir string // enrolled reference photos
	PeopleCSV     string // profile table consulted before known_people
	RoutinesFile  string // daily routines by weekday (YAML or JSON)
}

// LastSeenFile returns the path of the "last seen" record.
func (c *PathsConfig) LastSeenFile() string {
	return filepath.Join(c.MemoryDir, "recognized_faces.json")
}

// ChatMemoryFile returns the path of the diary file.
func (c *PathsConfig) ChatMemoryFile() string {
	return filepath.Join(c.MemoryDir, "chat_memory.json")
}

type ChatConfig struct {
	Provider  string  // "ollama" (default), "llamacpp", "openai" or "gemini"
	RateLimit float64 // fallback requests per second
	Burst     int
}

type OllamaConfig struct {
	URL   string // defaults to http://localhost:11434
	Model string // defaults to mistral
}

type LlamaCppConfig struct {
	URL   string // defaults to http://localhost:8080
	Model string
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

type LogConfig struct {
	Mode string // "dev" or "prod"
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads a positive Go duration ("5m", "30s"), falling back to defaultVal.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	driver := strings.ToLower(envString("DATABASE_DRIVER", "sqlite"))
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" && driver == "sqlite" {
		dbURL = "patient_database.db"
	}

	return &Config{
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8000),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Driver:       driver,
			URL:          dbURL,
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Camera: CameraConfig{
			Mode:        strings.ToLower(envString("CAMERA_MODE", "snapshot")),
			URL:         os.Getenv("CAMERA_URL"),
			Dir:         os.Getenv("CAMERA_DIR"),
			ReadTimeout: envDuration("CAMERA_READ_TIMEOUT", 5*time.Second),
			Interval:    envDuration("CAMERA_INTERVAL", 200*time.Millisecond),
		},
		Faces: FacesConfig{
			DetectorURL:      os.Getenv("FACE_DETECTOR_URL"),
			Tolerance:        envFloat("FACE_TOLERANCE", 0.5),
			DownsampleFactor: envFloat("FACE_DOWNSAMPLE", 0.25),
			Metric:           strings.ToLower(envString("FACE_METRIC", "euclidean")),
			Index:            strings.ToLower(envString("FACE_INDEX", "exact")),
			EncodingsBackend: strings.ToLower(envString("FACE_ENCODINGS_BACKEND", "file")),
			EncodingsFile:    envString("FACE_ENCODINGS_FILE", "face_encodings.gob"),
		},
		Recognition: RecognitionConfig{
			VisitCooldown: envDuration("VISIT_COOLDOWN", 30*time.Minute),
		},
		Reminders: RemindersConfig{
			Interval:  envDuration("REMINDER_INTERVAL", 5*time.Minute),
			Lookahead: envDuration("REMINDER_LOOKAHEAD", 30*time.Minute),
			Debounce:  envDuration("REMINDER_DEBOUNCE", 15*time.Minute),
		},
		Paths: PathsConfig{
			MemoryDir:     envString("MEMORY_DIR", "memory"),
			CaptureDir:    envString("CAPTURE_DIR", "temp_captures"),
			KnownFacesDir: envString("KNOWN_FACES_DIR", "known_faces"),
			PeopleCSV:     envString("PEOPLE_CSV", "people_data.csv"),
			RoutinesFile:  envString("ROUTINES_FILE", filepath.Join("memory", "daily_routines.json")),
		},
		Chat: ChatConfig{
			Provider:  strings.ToLower(envString("CHAT_PROVIDER", "ollama")),
			RateLimit: envFloat("CHAT_RATE_LIMIT", 1),
			Burst:     envInt("CHAT_BURST", 3),
		},
		Ollama: OllamaConfig{
			URL:   os.Getenv("OLLAMA_URL"),
			Model: os.Getenv("OLLAMA_MODEL"),
		},
		LlamaCpp: LlamaCppConfig{
			URL:   os.Getenv("LLAMACPP_URL"),
			Model: os.Getenv("LLAMACPP_MODEL"),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Log: LogConfig{
			Mode: envString("LOG_MODE", "dev"),
		},
	}
}
