package exec

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// RunManifest is the audit record of one executed plan.
type RunManifest struct {
	RunID       string            `json:"run_id"`
	Sequence    int               `json:"sequence"`
	Timestamp   time.Time         `json:"timestamp"`
	Plan        string            `json:"plan"`
	Kind        string            `json:"kind"`
	Runner      string            `json:"runner"`
	Image       string            `json:"image,omitempty"`
	Pins        []string          `json:"pins"`
	Command     string            `json:"command"`
	Success     bool              `json:"success"`
	Skipped     bool              `json:"skipped,omitempty"`
	Error       string            `json:"error,omitempty"`
	Duration    string            `json:"duration"`
	InputHashes map[string]string `json:"input_hashes,omitempty"`
	OutputHash  string            `json:"output_hash"`
	OutputBytes int               `json:"output_bytes"`
}

// ManifestWriter saves one RunManifest per plan into Dir. A nil writer
// records nothing.
type ManifestWriter struct {
	Dir     string
	RunID   string
	Runner  string
	Image   string
	Command string

	mu     sync.Mutex
	seq    int
	inputs map[string]string
}

// NewManifestWriter creates a writer with a fresh run ID.
func NewManifestWriter(dir, runner, image, command string) *ManifestWriter {
	return &ManifestWriter{
		Dir:     dir,
		RunID:   uuid.NewString(),
		Runner:  runner,
		Image:   image,
		Command: command,
		inputs:  make(map[string]string),
	}
}

// AddInput hashes a declaration file so every manifest records which inputs
// the run saw.
func (w *ManifestWriter) AddInput(name, path string) error {
	if w == nil {
		return nil
	}
	sum, err := HashFile(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inputs == nil {
		w.inputs = make(map[string]string)
	}
	w.inputs[name] = sum
	return nil
}

// Record builds and saves the manifest for one plan outcome.
func (w *ManifestWriter) Record(plan, kind string, pins []string, output string, duration time.Duration, skipped bool, runErr error) (*RunManifest, error) {
	if w == nil {
		return nil, nil
	}

	w.mu.Lock()
	w.seq++
	m := &RunManifest{
		RunID:       w.RunID,
		Sequence:    w.seq,
		Timestamp:   time.Now().UTC(),
		Plan:        plan,
		Kind:        kind,
		Runner:      w.Runner,
		Image:       w.Image,
		Pins:        pins,
		Command:     w.Command,
		Success:     runErr == nil && !skipped,
		Skipped:     skipped,
		Duration:    duration.String(),
		InputHashes: make(map[string]string, len(w.inputs)),
		OutputHash:  DigestString(output),
		OutputBytes: len(output),
	}
	for k, v := range w.inputs {
		m.InputHashes[k] = v
	}
	w.mu.Unlock()

	if runErr != nil {
		m.Error = runErr.Error()
	}
	if err := SaveManifest(m, w.Dir); err != nil {
		return nil, err
	}
	return m, nil
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SaveManifest writes a run manifest to disk
func SaveManifest(manifest *RunManifest, dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}

	runID := manifest.RunID
	if len(runID) > 8 {
		runID = runID[:8]
	}
	filename := fmt.Sprintf("%s_%04d_%s.json",
		runID,
		manifest.Sequence,
		unsafeFilename.ReplaceAllString(manifest.Plan, "_"))
	path := filepath.Join(dir, filename)

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// DigestString returns the hex BLAKE3-256 digest of s.
func DigestString(s string) string {
	sum := blake3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashFile computes the BLAKE3-256 hash of a file
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
