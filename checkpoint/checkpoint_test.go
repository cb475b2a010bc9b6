package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"
)

func TestSaveLoad(tst *testing.T) {
	dir, err := os.MkdirTemp("", "checkpoint")
	if err != nil {
		tst.Fatal(err)
	}
	defer os.RemoveAll(dir)

	db, err := bolt.Open(filepath.Join(dir, "test.db"), 0600, nil)
	if err != nil {
		tst.Fatal(err)
	}
	defer db.Close()

	cio := NewCheckpointIO(db, []byte("run1"), 0)
	data := &CheckpointData{
		Parameters: map[string]float64{"kappa": 2.5, "omega": 0.3},
		Likelihood: -1234.5,
		Iter:       17,
		Final:      false,
	}
	if err := cio.Save(data); err != nil {
		tst.Fatal("Error saving checkpoint:", err)
	}

	loaded, err := cio.GetParameters()
	if err != nil {
		tst.Fatal("Error loading checkpoint:", err)
	}
	if loaded == nil {
		tst.Fatal("checkpoint not found")
	}
	if loaded.Likelihood != data.Likelihood || loaded.Iter != data.Iter {
		tst.Error("checkpoint data mismatch")
	}
	if loaded.Parameters["kappa"] != 2.5 {
		tst.Error("wrong parameter value:", loaded.Parameters["kappa"])
	}
}

func TestNilDatabase(tst *testing.T) {
	cio := NewCheckpointIO(nil, []byte("run1"), 0)
	if err := cio.Save(&CheckpointData{}); err != nil {
		tst.Error("nil database save should be a no-op:", err)
	}
	data, err := cio.GetParameters()
	if err != nil || data != nil {
		tst.Error("nil database load should return nothing")
	}
}
