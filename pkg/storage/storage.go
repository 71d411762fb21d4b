// Package storage persists enrollment data: the recognizer model file and the
// id:name label file, both kept in one data directory. Files can optionally
// be sealed at rest with NaCl secretbox.
package storage

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrCodeEU/facewatch/pkg/labels"
	"github.com/MrCodeEU/facewatch/pkg/logging"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// NonceSize is the size of the nonce used for encryption
	NonceSize = 24
	// KeySize is the size of the encryption key
	KeySize = 32
)

// ErrNoEnrollment is returned when the data directory holds no saved model.
var ErrNoEnrollment = errors.New("no saved enrollment")

// ErrStorageAccess is returned when storage cannot be accessed.
var ErrStorageAccess = errors.New("failed to access storage")

// ErrEncryption is returned when encryption/decryption fails.
var ErrEncryption = errors.New("encryption error")

// SaveFunc writes opaque model state to path.
type SaveFunc func(path string) error

// LoadFunc reads opaque model state from path.
type LoadFunc func(path string) error

// FileStorage keeps the model and label files in one directory.
type FileStorage struct {
	dataDir           string
	modelFile         string
	labelsFile        string
	encryptionEnabled bool
	encryptionKey     [KeySize]byte
	log               *logrus.Entry
}

// NewFileStorage creates a FileStorage. The directory itself is created on
// the first load or save.
func NewFileStorage(dataDir, modelFile, labelsFile string, encryptionEnabled bool) (*FileStorage, error) {
	fs := &FileStorage{
		dataDir:           dataDir,
		modelFile:         modelFile,
		labelsFile:        labelsFile,
		encryptionEnabled: encryptionEnabled,
		log:               logging.Component("storage"),
	}

	if encryptionEnabled {
		key, err := deriveKey()
		if err != nil {
			return nil, fmt.Errorf("failed to derive encryption key: %w", err)
		}
		fs.encryptionKey = key
	}

	return fs, nil
}

// deriveKey derives an encryption key from machine-specific information,
// so sealed files only open on the machine that wrote them.
func deriveKey() ([KeySize]byte, error) {
	var key [KeySize]byte
	var identity strings.Builder

	if machineID, err := os.ReadFile("/etc/machine-id"); err == nil {
		identity.Write(machineID)
	}
	if hostname, err := os.Hostname(); err == nil {
		identity.WriteString(hostname)
	}
	identity.WriteString(fmt.Sprintf("%d", os.Getuid()))
	identity.WriteString("facewatch-v1-salt")

	hash := sha256.Sum256([]byte(identity.String()))
	copy(key[:], hash[:])

	return key, nil
}

// ModelPath returns the model file location.
func (fs *FileStorage) ModelPath() string {
	return filepath.Join(fs.dataDir, fs.modelFile)
}

// LabelsPath returns the label file location.
func (fs *FileStorage) LabelsPath() string {
	return filepath.Join(fs.dataDir, fs.labelsFile)
}

func (fs *FileStorage) ensureDir() error {
	if err := os.MkdirAll(fs.dataDir, 0700); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrStorageAccess, fs.dataDir, err)
	}
	return nil
}

// HasEnrollment reports whether both the model and the label file exist.
func (fs *FileStorage) HasEnrollment() bool {
	for _, p := range []string{fs.ModelPath(), fs.LabelsPath()} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// Load restores a saved enrollment: the label map from disk, then the model
// through load. load is not called when the labels cannot be read. It
// returns ErrNoEnrollment, after creating the data directory, when either
// file is missing.
func (fs *FileStorage) Load(load LoadFunc) (*labels.Map, error) {
	if err := fs.ensureDir(); err != nil {
		return nil, err
	}
	if !fs.HasEnrollment() {
		return nil, ErrNoEnrollment
	}

	m, err := fs.LoadLabels()
	if err != nil {
		return nil, err
	}

	if err := fs.LoadModel(load); err != nil {
		return nil, err
	}

	fs.log.Infof("Loaded enrollment with %d subject(s)", m.Len())
	return m, nil
}

// Save persists the model through save and rewrites the label file.
func (fs *FileStorage) Save(save SaveFunc, m *labels.Map) error {
	if err := fs.SaveModel(save); err != nil {
		return err
	}
	return fs.SaveLabels(m)
}

// LoadLabels reads the label file.
func (fs *FileStorage) LoadLabels() (*labels.Map, error) {
	data, err := fs.readFile(fs.LabelsPath())
	if err != nil {
		return nil, err
	}

	m, err := labels.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse labels: %w", err)
	}
	return m, nil
}

// SaveLabels rewrites the label file.
func (fs *FileStorage) SaveLabels(m *labels.Map) error {
	if err := fs.ensureDir(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to encode labels: %w", err)
	}

	if err := fs.writeFile(fs.LabelsPath(), buf.Bytes()); err != nil {
		return err
	}

	fs.log.Debugf("Saved %d label(s) to %s", m.Len(), fs.LabelsPath())
	return nil
}

// SaveModel lets save write the model to a scratch file, then moves it into
// place. With encryption enabled the scratch file is sealed first.
func (fs *FileStorage) SaveModel(save SaveFunc) error {
	if err := fs.ensureDir(); err != nil {
		return err
	}

	tmp, err := fs.scratchPath()
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp) }()

	if err := save(tmp); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}

	if fs.encryptionEnabled {
		data, err := os.ReadFile(tmp)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStorageAccess, err)
		}
		return fs.writeFile(fs.ModelPath(), data)
	}

	if err := os.Rename(tmp, fs.ModelPath()); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageAccess, err)
	}

	fs.log.Debugf("Saved model to %s", fs.ModelPath())
	return nil
}

// LoadModel hands load the model path. With encryption enabled the model is
// opened into a scratch file first.
func (fs *FileStorage) LoadModel(load LoadFunc) error {
	if !fs.encryptionEnabled {
		if err := load(fs.ModelPath()); err != nil {
			return fmt.Errorf("failed to read model: %w", err)
		}
		return nil
	}

	data, err := fs.readFile(fs.ModelPath())
	if err != nil {
		return err
	}

	tmp, err := fs.scratchPath()
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp) }()

	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageAccess, err)
	}
	if err := load(tmp); err != nil {
		return fmt.Errorf("failed to read model: %w", err)
	}
	return nil
}

// scratchPath reserves a temp file next to the model. It keeps the model's
// extension because OpenCV picks the serialization format from it.
func (fs *FileStorage) scratchPath() (string, error) {
	ext := filepath.Ext(fs.modelFile)
	base := strings.TrimSuffix(fs.modelFile, ext)
	f, err := os.CreateTemp(fs.dataDir, base+"-*"+ext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageAccess, err)
	}
	name := f.Name()
	_ = f.Close()
	return name, nil
}

func (fs *FileStorage) readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoEnrollment
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageAccess, err)
	}

	if fs.encryptionEnabled {
		data, err = fs.decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt %s: %w", filepath.Base(path), err)
		}
	}
	return data, nil
}

func (fs *FileStorage) writeFile(path string, data []byte) error {
	if fs.encryptionEnabled {
		var err error
		data, err = fs.encrypt(data)
		if err != nil {
			return fmt.Errorf("failed to encrypt %s: %w", filepath.Base(path), err)
		}
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageAccess, err)
	}
	return nil
}

// encrypt encrypts data using NaCl secretbox.
func (fs *FileStorage) encrypt(plaintext []byte) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}

	return secretbox.Seal(nonce[:], plaintext, &nonce, &fs.encryptionKey), nil
}

// decrypt decrypts data using NaCl secretbox.
func (fs *FileStorage) decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize {
		return nil, ErrEncryption
	}

	var nonce [NonceSize]byte
	copy(nonce[:], ciphertext[:NonceSize])

	plaintext, ok := secretbox.Open(nil, ciphertext[NonceSize:], &nonce, &fs.encryptionKey)
	if !ok {
		return nil, ErrEncryption
	}

	return plaintext, nil
}
