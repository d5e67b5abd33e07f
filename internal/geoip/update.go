package geoip

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/juniorsir/stream-dl/internal/metrics"
)

var (
	errNoDownloader = errors.New("geoip: no downloader configured")
	errNoDBURL      = errors.New("geoip: no database URL configured")
	errNoOpenFunc   = errors.New("geoip: no open function configured")
)

// ChecksumError reports a downloaded database whose digest does not match
// the published one.
type ChecksumError struct {
	Got, Want string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("geoip: sha256 mismatch: got %s, want %s", e.Got, e.Want)
}

// UpdateNow fetches a fresh database and installs it. The current file and
// reader are left untouched unless every step succeeds: download, checksum
// (when a checksum URL is set), a trial open, then an atomic rename.
func (s *Service) UpdateNow() (err error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()
	defer func() { metrics.IncGeoIPReload(err == nil) }()

	ctx := s.lifetime()
	if err := ctx.Err(); err != nil {
		return err
	}
	switch {
	case s.downloader == nil:
		return errNoDownloader
	case s.dbURL == "":
		return errNoDBURL
	case s.openDB == nil:
		return errNoOpenFunc
	}

	data, err := s.downloader.Download(ctx, s.dbURL)
	if err != nil {
		return fmt.Errorf("geoip: download db: %w", err)
	}
	if err := s.checkDigest(ctx, data); err != nil {
		return err
	}

	staged, err := s.stage(data)
	if err != nil {
		return err
	}
	defer os.Remove(staged)

	reader, err := s.openDB(staged)
	if err != nil {
		return fmt.Errorf("geoip: downloaded database is unreadable: %w", err)
	}
	if err := os.Rename(staged, s.dbPath()); err != nil {
		reader.Close()
		return fmt.Errorf("geoip: install db: %w", err)
	}
	s.install(reader)

	s.logger.Info().Str("path", s.dbPath()).Int("bytes", len(data)).Msg("database updated")
	return nil
}

func (s *Service) checkDigest(ctx context.Context, data []byte) error {
	if s.sha256URL == "" {
		return nil
	}
	body, err := s.downloader.Download(ctx, s.sha256URL)
	if err != nil {
		return fmt.Errorf("geoip: download sha256: %w", err)
	}
	want := parseChecksum(body)
	if want == "" {
		return fmt.Errorf("geoip: no sha256 digest in %q", string(bytes.TrimSpace(body)))
	}
	return verifyChecksum(data, want)
}

// stage writes data to a temp file next to the live database so the final
// rename stays on one filesystem.
func (s *Service) stage(data []byte) (string, error) {
	if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("geoip: create cache dir: %w", err)
	}
	f, err := os.CreateTemp(s.cacheDir, s.dbFilename+".tmp.*")
	if err != nil {
		return "", fmt.Errorf("geoip: stage db: %w", err)
	}
	_, werr := f.Write(data)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("geoip: stage db: %w", err)
	}
	return f.Name(), nil
}

func verifyChecksum(data []byte, want string) error {
	sum := sha256.Sum256(data)
	got := hex.EncodeToString(sum[:])
	want = strings.ToLower(want)
	if got != want {
		return &ChecksumError{Got: got, Want: want}
	}
	return nil
}

// parseChecksum reads the digest from sha256sum output ("<hex>  <name>").
func parseChecksum(body []byte) string {
	fields := strings.Fields(string(body))
	if len(fields) == 0 || len(fields[0]) != sha256.Size*2 {
		return ""
	}
	if _, err := hex.DecodeString(fields[0]); err != nil {
		return ""
	}
	return strings.ToLower(fields[0])
}
