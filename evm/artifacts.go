package evm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/DefiantLabs/token-relayer/core"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Artifact is a compiled contract: its ABI and creation bytecode.
type Artifact struct {
	Name     string
	ABI      abi.ABI
	Bytecode []byte
}

// artifactFile is the subset of a Hardhat/Foundry build artifact we read.
type artifactFile struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     json.RawMessage `json:"bytecode"`
}

// ArtifactStore loads <name>.json artifacts from a directory and caches them for the life of the process.
type ArtifactStore struct {
	dir   string
	mu    sync.Mutex
	cache map[string]*Artifact
}

func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{dir: dir, cache: make(map[string]*Artifact)}
}

// Load returns the named artifact. Failures wrap core.ErrConfiguration: a missing or broken artifact is an install problem.
func (s *ArtifactStore) Load(name string) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if art, ok := s.cache[name]; ok {
		return art, nil
	}
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("%w: invalid artifact name %q", core.ErrConfiguration, name)
	}

	path := filepath.Join(s.dir, name+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: artifact %s: %w", core.ErrConfiguration, name, err)
	}

	art, err := parseArtifact(name, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: artifact %s: %w", core.ErrConfiguration, name, err)
	}
	s.cache[name] = art
	return art, nil
}

func parseArtifact(name string, raw []byte) (*Artifact, error) {
	var file artifactFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, err
	}
	if len(file.ABI) == 0 {
		return nil, fmt.Errorf("no abi")
	}

	parsed, err := abi.JSON(bytes.NewReader(file.ABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	bytecode, err := decodeBytecode(file.Bytecode)
	if err != nil {
		return nil, err
	}

	return &Artifact{Name: name, ABI: parsed, Bytecode: bytecode}, nil
}

// decodeBytecode accepts the plain hex string form and the {"object": "0x..."} form Foundry emits.
func decodeBytecode(raw json.RawMessage) ([]byte, error) {
	var hex string
	if err := json.Unmarshal(raw, &hex); err != nil {
		var wrapped struct {
			Object string `json:"object"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("bytecode must be a hex string")
		}
		hex = wrapped.Object
	}
	if !strings.HasPrefix(hex, "0x") {
		hex = "0x" + hex
	}
	bytecode, err := hexutil.Decode(hex)
	if err != nil {
		return nil, fmt.Errorf("decode bytecode: %w", err)
	}
	// "0x" with nothing after it is what an interface or abstract contract compiles to
	if len(bytecode) == 0 {
		return nil, fmt.Errorf("empty bytecode")
	}
	return bytecode, nil
}

// Preload loads every named artifact so a missing one fails at startup rather than on the first request.
func (s *ArtifactStore) Preload(names ...string) error {
	for _, name := range names {
		if _, err := s.Load(name); err != nil {
			return err
		}
	}
	return nil
}
