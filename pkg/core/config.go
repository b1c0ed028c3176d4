package core

import (
	"os"
	"path/filepath"
)

// Default search parameters. Centralized here so every call path reads the
// same values instead of carrying its own constants.
const (
	// DefaultThreshold is the minimum similarity for a search hit.
	DefaultThreshold = 0.7

	// DefaultLimit is the maximum number of search results.
	DefaultLimit = 10

	// DefaultDimensions matches the all-MiniLM-L6-v2 embedding model.
	DefaultDimensions = 384
)

// Config holds the store and embedder settings read once at startup.
type Config struct {
	// Path is the SQLite database file location.
	Path string

	// Dimensions is the embedding vector size of the configured model.
	Dimensions int

	// Threshold is the default similarity cutoff applied when search
	// options leave it unset.
	Threshold float64

	// Limit is the default result cap applied when search options leave
	// it unset.
	Limit int

	// ModelPath points at the ONNX embedding model file.
	ModelPath string

	// TokenizerPath points at the tokenizer.json accompanying the model.
	TokenizerPath string

	// ONNXLibraryPath overrides the onnxruntime shared library location.
	ONNXLibraryPath string
}

// DefaultConfig returns the configuration the server ships with: a database
// under the user's home directory and MiniLM-sized vectors.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		Path:       filepath.Join(home, ".go-mem-mcp", "memory.db"),
		Dimensions: DefaultDimensions,
		Threshold:  DefaultThreshold,
		Limit:      DefaultLimit,
	}
}
