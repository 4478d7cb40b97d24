// Package checkpoint persists a model's weights to disk and restores them.
// It snapshots the stable named-weight layout the model exposes; the model
// itself never touches the filesystem. Files carry an xxhash64 checksum so
// truncated or corrupted checkpoints fail loudly at load time.
package checkpoint

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/red9inja/red9inja-GPT/model"
)

var magic = [8]byte{'R', '9', 'G', 'P', 'T', 'C', 'K', 'P'}

const formatVersion uint32 = 1

// Save writes the model's config and every named weight to path. The tied
// output head is stored once, as the token embedding table.
func Save(path string, m *model.GPT) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create checkpoint")
	}
	defer f.Close()

	hasher := xxhash.New()
	w := io.MultiWriter(f, hasher)

	if _, err := w.Write(magic[:]); err != nil {
		return errors.Wrap(err, "write header")
	}
	if err := binary.Write(w, binary.LittleEndian, formatVersion); err != nil {
		return errors.Wrap(err, "write header")
	}

	cfgJSON, err := json.Marshal(m.Config)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	if err := writeBytes(w, cfgJSON); err != nil {
		return errors.Wrap(err, "write config")
	}

	weights := m.NamedWeights()
	if err := binary.Write(w, binary.LittleEndian, uint32(len(weights))); err != nil {
		return errors.Wrap(err, "write weight count")
	}
	for _, nw := range weights {
		if err := writeBytes(w, []byte(nw.Name)); err != nil {
			return errors.Wrapf(err, "write weight %s", nw.Name)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(nw.Tensor.Shape))); err != nil {
			return errors.Wrapf(err, "write weight %s", nw.Name)
		}
		for _, dim := range nw.Tensor.Shape {
			if err := binary.Write(w, binary.LittleEndian, uint32(dim)); err != nil {
				return errors.Wrapf(err, "write weight %s", nw.Name)
			}
		}
		buf := make([]byte, 4*len(nw.Tensor.Data))
		for i, v := range nw.Tensor.Data {
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
		}
		if _, err := w.Write(buf); err != nil {
			return errors.Wrapf(err, "write weight %s", nw.Name)
		}
	}

	// Footer: checksum of everything written so far, excluded from itself.
	if err := binary.Write(f, binary.LittleEndian, hasher.Sum64()); err != nil {
		return errors.Wrap(err, "write checksum")
	}

	klog.V(1).Infof("saved checkpoint %s (%d weights)", path, len(weights))
	return nil
}

// Load reads a checkpoint, verifies its checksum, rebuilds the model from
// the stored config and fills in every weight by name.
func Load(path string) (*model.GPT, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read checkpoint")
	}
	if len(raw) < len(magic)+12 {
		return nil, errors.Errorf("checkpoint %s is truncated", path)
	}

	payload := raw[:len(raw)-8]
	stored := binary.LittleEndian.Uint64(raw[len(raw)-8:])
	if sum := xxhash.Sum64(payload); sum != stored {
		return nil, errors.Errorf("checkpoint %s checksum mismatch: got %016x, want %016x", path, sum, stored)
	}

	r := bytes.NewReader(payload)

	var gotMagic [8]byte
	if _, err := io.ReadFull(r, gotMagic[:]); err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	if gotMagic != magic {
		return nil, errors.Errorf("checkpoint %s has wrong magic", path)
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	if version != formatVersion {
		return nil, errors.Errorf("unsupported checkpoint version %d", version)
	}

	cfgJSON, err := readBytes(r)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	cfg := &model.Config{}
	if err := json.Unmarshal(cfgJSON, cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "stored config is invalid")
	}

	m := model.New(cfg, 0)
	byName := make(map[string]int)
	weights := m.NamedWeights()
	for i, nw := range weights {
		byName[nw.Name] = i
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, errors.Wrap(err, "read weight count")
	}
	if int(count) != len(weights) {
		return nil, errors.Errorf("checkpoint has %d weights, model expects %d", count, len(weights))
	}

	filled := make(map[string]bool, len(weights))
	for i := uint32(0); i < count; i++ {
		nameBytes, err := readBytes(r)
		if err != nil {
			return nil, errors.Wrap(err, "read weight name")
		}
		name := string(nameBytes)

		idx, ok := byName[name]
		if !ok {
			return nil, errors.Errorf("checkpoint weight %q has no place in the model", name)
		}
		if filled[name] {
			return nil, errors.Errorf("checkpoint lists weight %q twice", name)
		}
		filled[name] = true
		dst := weights[idx].Tensor

		var ndim uint32
		if err := binary.Read(r, binary.LittleEndian, &ndim); err != nil {
			return nil, errors.Wrapf(err, "read weight %s", name)
		}
		size := 1
		for d := uint32(0); d < ndim; d++ {
			var dim uint32
			if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
				return nil, errors.Wrapf(err, "read weight %s", name)
			}
			size *= int(dim)
		}
		if size != dst.Size() {
			return nil, errors.Errorf("weight %s has %d elements, model expects %d", name, size, dst.Size())
		}

		buf := make([]byte, 4*size)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, errors.Wrapf(err, "read weight %s", name)
		}
		for j := range dst.Data {
			dst.Data[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*j:]))
		}
	}

	for _, nw := range weights {
		if !filled[nw.Name] {
			return nil, errors.Errorf("checkpoint is missing weight %q", nw.Name)
		}
	}

	klog.V(1).Infof("loaded checkpoint %s (%d weights)", path, count)
	return m, nil
}

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
