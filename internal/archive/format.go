// Package archive packs a completed run into a single compressed,
// checksummed file and manages retention of those files.
//
// An archive is a one-line JSON header followed by a gzip-compressed JSON
// payload. The header can be read without decompressing anything, and its
// checksum covers the compressed bytes.
package archive

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/nvandessel/episim/internal/config"
	"github.com/nvandessel/episim/internal/constants"
	"github.com/nvandessel/episim/internal/intervention"
	"github.com/nvandessel/episim/internal/models"
	"github.com/nvandessel/episim/internal/simulation"
)

// FormatVersion is the current archive format.
const FormatVersion = 1

// Header is the uncompressed first line of an archive.
type Header struct {
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	Checksum   string    `json:"checksum"` // "sha256:<hex>" of the compressed payload
	RunID      string    `json:"run_id"`
	RunUUID    string    `json:"run_uuid"`
	DayCount   int       `json:"day_count"`
	EventCount int       `json:"event_count"`
	Compressed bool      `json:"compressed"`
}

// Payload is everything needed to reproduce or inspect a run.
type Payload struct {
	Summary   simulation.Summary      `json:"summary"`
	Config    *config.Config          `json:"config"`
	History   []models.DayCounts      `json:"history"`
	Events    []models.Event          `json:"events"`
	Decisions []intervention.Decision `json:"decisions,omitempty"`
}

// NewPayload collects the archived parts of a run.
func NewPayload(cfg *config.Config, result *simulation.Result) *Payload {
	return &Payload{
		Summary:   result.Summary,
		Config:    cfg,
		History:   result.History,
		Events:    result.Events,
		Decisions: result.Decisions,
	}
}

// FileName returns the archive name for a run, e.g. run_004.episim.gz.
func FileName(runID string) string {
	return "run_" + runID + constants.ArchiveExt
}

// Write stores p at path, creating parent directories.
func Write(path string, p *Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling archive payload: %w", err)
	}

	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	if _, err := gz.Write(data); err != nil {
		return fmt.Errorf("compressing archive payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}

	header := Header{
		Version:    FormatVersion,
		CreatedAt:  time.Now(),
		Checksum:   checksum(compressed.Bytes()),
		RunID:      p.Summary.RunID,
		RunUUID:    p.Summary.RunUUID,
		DayCount:   len(p.History),
		EventCount: len(p.Events),
		Compressed: true,
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshaling archive header: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}

	var out bytes.Buffer
	out.Grow(len(headerJSON) + 1 + compressed.Len())
	out.Write(headerJSON)
	out.WriteByte('\n')
	out.Write(compressed.Bytes())

	if err := os.WriteFile(path, out.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing archive: %w", err)
	}
	return nil
}

// Read loads and verifies an archive.
func Read(path string) (*Header, *Payload, error) {
	header, compressed, err := readParts(path)
	if err != nil {
		return nil, nil, err
	}
	if actual := checksum(compressed); actual != header.Checksum {
		return nil, nil, fmt.Errorf("checksum mismatch: expected %s, got %s", header.Checksum, actual)
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gz.Close()

	limited := io.LimitReader(gz, constants.MaxArchiveSize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing archive: %w", err)
	}
	if int64(len(data)) > constants.MaxArchiveSize {
		return nil, nil, fmt.Errorf("decompressed archive exceeds maximum size of %d bytes", constants.MaxArchiveSize)
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, nil, fmt.Errorf("parsing archive payload: %w", err)
	}
	return header, &p, nil
}

// ReadHeader reads only the header line.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	header, _, err := parseHeader(bufio.NewReader(f))
	return header, err
}

// VerifyChecksum checks the payload against the header without decompressing.
func VerifyChecksum(path string) error {
	header, compressed, err := readParts(path)
	if err != nil {
		return err
	}
	if actual := checksum(compressed); actual != header.Checksum {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", header.Checksum, actual)
	}
	return nil
}

func readParts(path string) (*Header, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	header, reader, err := parseHeader(bufio.NewReader(f))
	if err != nil {
		return nil, nil, err
	}
	compressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("reading compressed payload: %w", err)
	}
	return header, compressed, nil
}

func parseHeader(reader *bufio.Reader) (*Header, *bufio.Reader, error) {
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("reading archive header: %w", err)
	}
	var header Header
	if err := json.Unmarshal(line, &header); err != nil {
		return nil, nil, fmt.Errorf("parsing archive header: %w", err)
	}
	if header.Version != FormatVersion {
		return nil, nil, fmt.Errorf("unsupported archive version %d", header.Version)
	}
	return &header, reader, nil
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}
