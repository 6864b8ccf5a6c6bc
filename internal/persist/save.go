package persist

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/heavy-go/hv/internal/serialize"
	"github.com/heavy-go/hv/internal/wire"
)

var (
	// ErrDigestMismatch is returned when stored streams do not hash to the
	// digest recorded with them.
	ErrDigestMismatch = errors.New("save digest mismatch")
	// ErrFingerprintMismatch is returned when a save was written with a
	// different set of codecs than the one loading it.
	ErrFingerprintMismatch = errors.New("codec fingerprint mismatch")
	// ErrNotSaveFile is returned for files without the save file magic.
	ErrNotSaveFile = errors.New("not a save file")
	// ErrBadName is returned for save names that are not a single path element.
	ErrBadName = errors.New("invalid save name")
)

const fileMagic = "HVSAVE01"

// Save is one stored space snapshot.
type Save struct {
	ID          uuid.UUID
	Name        string
	Fingerprint uint64
	ObjectCount int
	Snapshot    *serialize.Snapshot
	Digest      []byte
	CreatedAt   time.Time
}

// NewSave wraps a snapshot with a fresh id and its digest.
func NewSave(name string, fingerprint uint64, objects int, snap *serialize.Snapshot) *Save {
	return &Save{
		ID:          uuid.New(),
		Name:        name,
		Fingerprint: fingerprint,
		ObjectCount: objects,
		Snapshot:    snap,
		Digest:      Digest(snap),
		CreatedAt:   time.Now().UTC(),
	}
}

// Digest hashes both streams with BLAKE2b-256.
func Digest(snap *serialize.Snapshot) []byte {
	sum := blake2b.Sum256(snap.Bytes())
	return sum[:]
}

// Verify checks the digest and, when fingerprint is non-zero, that the save
// was written with the same codecs.
func (s *Save) Verify(fingerprint uint64) error {
	if !bytes.Equal(Digest(s.Snapshot), s.Digest) {
		return fmt.Errorf("%w: save %s", ErrDigestMismatch, s.ID)
	}
	if fingerprint != 0 && fingerprint != s.Fingerprint {
		return fmt.Errorf("%w: save %s has %016x, want %016x", ErrFingerprintMismatch, s.ID, s.Fingerprint, fingerprint)
	}
	return nil
}

// MarshalBinary encodes the save in the file format.
func (s *Save) MarshalBinary() ([]byte, error) {
	w := wire.NewWriter()
	w.WriteString(fileMagic)
	w.WriteBlob(s.ID[:])
	w.WriteString(s.Name)
	w.WriteU64(s.Fingerprint)
	w.WriteU32(uint32(s.ObjectCount))
	w.WriteU64(uint64(s.CreatedAt.UnixNano()))
	w.WriteBlob(s.Digest)
	w.WriteBlob(s.Snapshot.Bytes())
	return w.Bytes(), nil
}

// UnmarshalBinary decodes a save written by MarshalBinary.
func (s *Save) UnmarshalBinary(data []byte) error {
	r := wire.NewReader(data)
	if magic := r.ReadString(); magic != fileMagic {
		if err := r.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrNotSaveFile, err)
		}
		return ErrNotSaveFile
	}
	id, err := uuid.FromBytes(r.ReadBlob())
	if err != nil {
		return fmt.Errorf("save id: %w", err)
	}
	s.ID = id
	s.Name = r.ReadString()
	s.Fingerprint = r.ReadU64()
	s.ObjectCount = int(r.ReadU32())
	s.CreatedAt = time.Unix(0, int64(r.ReadU64())).UTC()
	s.Digest = bytes.Clone(r.ReadBlob())
	body := r.ReadBlob()
	if err := r.Err(); err != nil {
		return fmt.Errorf("read save: %w", err)
	}
	snap, err := serialize.ParseSnapshot(bytes.Clone(body))
	if err != nil {
		return err
	}
	s.Snapshot = snap
	return nil
}

// WriteFile stores s in dir as <name>-<id>.hvsave and returns the path.
func WriteFile(dir string, s *Save) (string, error) {
	if err := checkName(s.Name); err != nil {
		return "", err
	}
	data, err := s.MarshalBinary()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create save dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.hvsave", s.Name, s.ID))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write save: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("write save: %w", err)
	}
	return path, nil
}

// checkName rejects names that would place the file outside the save dir.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return nil
}

// ReadFile loads a save file.
func ReadFile(path string) (*Save, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read save: %w", err)
	}
	s := &Save{}
	if err := s.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}
