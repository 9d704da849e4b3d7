package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/srg/blemgr/internal/device"
	"gopkg.in/yaml.v3"
)

// DocumentVersion is the current version of the registry document format.
const DocumentVersion = 1

// Store is the durable backing of the registry: a single record holding the
// ordered device list.
type Store interface {
	Load() ([]device.Device, error)
	Save([]device.Device) error
}

// Document is the persisted record.
type Document struct {
	Version int             `json:"version" yaml:"version" cbor:"version"`
	SavedAt time.Time       `json:"saved_at" yaml:"saved_at" cbor:"saved_at"`
	Devices []device.Device `json:"devices" yaml:"devices" cbor:"devices"`
}

// Codec serializes a Document.
type Codec interface {
	Name() string
	Marshal(doc *Document) ([]byte, error)
	Unmarshal(data []byte, doc *Document) error
}

var ErrUnknownFormat = errors.New("unknown registry format")

type yamlCodec struct{}

func (yamlCodec) Name() string                               { return "yaml" }
func (yamlCodec) Marshal(doc *Document) ([]byte, error)      { return yaml.Marshal(doc) }
func (yamlCodec) Unmarshal(data []byte, doc *Document) error { return yaml.Unmarshal(data, doc) }

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }
func (jsonCodec) Marshal(doc *Document) ([]byte, error) {
	return jsonAPI.MarshalIndent(doc, "", "  ")
}
func (jsonCodec) Unmarshal(data []byte, doc *Document) error { return jsonAPI.Unmarshal(data, doc) }

type cborCodec struct {
	enc cbor.EncMode
}

func newCBORCodec() (cborCodec, error) {
	// RFC3339Nano text keeps sub-second precision and the zone offset
	enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		return cborCodec{}, err
	}
	return cborCodec{enc: enc}, nil
}

func (cborCodec) Name() string                               { return "cbor" }
func (c cborCodec) Marshal(doc *Document) ([]byte, error)    { return c.enc.Marshal(doc) }
func (cborCodec) Unmarshal(data []byte, doc *Document) error { return cbor.Unmarshal(data, doc) }

// CodecFor returns the codec for a format name or file extension
// ("yaml", ".yml", "json", "cbor", ...).
func CodecFor(format string) (Codec, error) {
	switch strings.TrimPrefix(strings.ToLower(format), ".") {
	case "yaml", "yml":
		return yamlCodec{}, nil
	case "json":
		return jsonCodec{}, nil
	case "cbor":
		return newCBORCodec()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func encode(codec Codec, devices []device.Device) ([]byte, error) {
	doc := &Document{
		Version: DocumentVersion,
		SavedAt: time.Now(),
		Devices: devices,
	}
	data, err := codec.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode registry as %s: %w", codec.Name(), err)
	}
	return data, nil
}

func decode(codec Codec, data []byte) ([]device.Device, error) {
	var doc Document
	if err := codec.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode registry as %s: %w", codec.Name(), err)
	}
	if doc.Version > DocumentVersion {
		return nil, fmt.Errorf("registry document version %d is newer than supported version %d", doc.Version, DocumentVersion)
	}
	return doc.Devices, nil
}

// FileStore persists the registry document to a single file.
type FileStore struct {
	mu    sync.Mutex
	path  string
	codec Codec
}

// NewFileStore creates a file store whose format follows the file extension.
func NewFileStore(path string) (*FileStore, error) {
	codec, err := CodecFor(filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	return &FileStore{path: path, codec: codec}, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Save writes the document, creating the parent directory if needed.
func (s *FileStore) Save(devices []device.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := encode(s.codec, devices)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	// write to a sibling file and rename so a crash never leaves a torn document
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the document. A missing file is an empty registry.
func (s *FileStore) Load() ([]device.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(s.codec, data)
}

// Clear removes the backing file.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// MemoryStoreKey is the fixed key the memory store files its record under.
const MemoryStoreKey = "bluetooth-devices"

// MemoryStore keeps encoded documents in memory, keyed like a browser-style
// key/value store. Devices still go through a codec so that values survive
// exactly as they would on disk.
type MemoryStore struct {
	mu      sync.Mutex
	codec   Codec
	records map[string][]byte
}

// NewMemoryStore creates an empty in-memory store using the JSON codec.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		codec:   jsonCodec{},
		records: make(map[string][]byte),
	}
}

func (s *MemoryStore) Save(devices []device.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := encode(s.codec, devices)
	if err != nil {
		return err
	}
	s.records[MemoryStoreKey] = data
	return nil
}

func (s *MemoryStore) Load() ([]device.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.records[MemoryStoreKey]
	if !ok {
		return nil, nil
	}
	return decode(s.codec, data)
}

// Raw returns the stored bytes, or nil.
func (s *MemoryStore) Raw() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.records[MemoryStoreKey]...)
}

// Corrupt replaces the stored record with arbitrary bytes.
func (s *MemoryStore) Corrupt(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[MemoryStoreKey] = data
}
