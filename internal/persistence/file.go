// Package persistence writes the artifacts produced by the ingestion server.
package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/buoylink/buoylink/pkg/buoy1/model"
)

// Artifact extensions.
const (
	ExtRaw         = "bin"
	ExtWaveform    = "wav"
	ExtSpectrogram = "png"
	ExtMetadata    = "json"
)

// DataFile describes a file written by Store.
type DataFile struct {
	Path string
	Size int
}

// Store writes artifacts as <Dir>/<buoy id>.<timestamp>.<ext>. Every file is
// written under a temporary name and renamed into place once complete, so a
// reader never observes a partial artifact.
type Store struct {
	Dir string
}

// New returns a Store rooted at dir, creating dir if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Store{Dir: dir}, nil
}

// Path returns the final path of the artifact with the given extension.
func (s *Store) Path(id, ts, ext string) string {
	return filepath.Join(s.Dir, id+"."+ts+"."+ext)
}

// WriteRaw writes the raw hydrophone payload.
func (s *Store) WriteRaw(id, ts string, raw []byte) (*DataFile, error) {
	return s.write(id, ts, ExtRaw, raw)
}

// WriteMetadata writes md as JSON. It must be the last artifact written for
// a given upload: its presence signals that the set is complete.
func (s *Store) WriteMetadata(id, ts string, md *model.Metadata) (*DataFile, error) {
	data, err := json.Marshal(md)
	if err != nil {
		return nil, err
	}
	return s.write(id, ts, ExtMetadata, data)
}

// Produce calls fn with a temporary path in the store's directory and renames
// it to the artifact's final path if fn succeeds. On failure the temporary
// file is removed.
func (s *Store) Produce(id, ts, ext string, fn func(tmp string) error) (*DataFile, error) {
	tmp, err := s.tempFile(id, ts, ext)
	if err != nil {
		return nil, err
	}
	name := tmp.Name()
	tmp.Close()
	if err := fn(name); err != nil {
		os.Remove(name)
		return nil, err
	}
	return s.commit(name, s.Path(id, ts, ext))
}

func (s *Store) write(id, ts, ext string, data []byte) (*DataFile, error) {
	fp, err := s.tempFile(id, ts, ext)
	if err != nil {
		return nil, err
	}
	if _, err := fp.Write(data); err != nil {
		fp.Close()
		os.Remove(fp.Name())
		return nil, err
	}
	if err := fp.Close(); err != nil {
		os.Remove(fp.Name())
		return nil, err
	}
	return s.commit(fp.Name(), s.Path(id, ts, ext))
}

func (s *Store) tempFile(id, ts, ext string) (*os.File, error) {
	// The extension stays last: external tools pick their output format
	// from it.
	return os.CreateTemp(s.Dir, "."+id+"."+ts+".tmp-*."+ext)
}

func (s *Store) commit(tmp, final string) (*DataFile, error) {
	fi, err := os.Stat(tmp)
	if err != nil {
		os.Remove(tmp)
		return nil, err
	}
	if err := os.Chmod(tmp, 0644); err != nil {
		os.Remove(tmp)
		return nil, err
	}
	// The modification time is the commit time, at full clock resolution, so
	// artifacts of one upload are ordered by the time they became visible.
	now := time.Now()
	if err := os.Chtimes(tmp, now, now); err != nil {
		os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return nil, err
	}
	return &DataFile{Path: final, Size: int(fi.Size())}, nil
}
