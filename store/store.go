// Package store persists a trained tokenizer to and from JSON, guarding
// concurrent writers with a file lock and committing via a temp-file-then-
// rename so a reader never observes a half-written file.
package store

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// RuleDict is the JSON-serializable form of a morph.Rule: an Op is carried
// as its apply/revert regex pair (empty strings if the rule has no Op).
// MinBaseLength is nil when the rule defers to the model's global minimum.
type RuleDict struct {
	Suffix        string  `json:"suffix"`
	ApplyPattern  string  `json:"apply_pattern,omitempty"`
	ApplySub      string  `json:"apply_sub,omitempty"`
	RevertPattern string  `json:"revert_pattern,omitempty"`
	RevertSub     string  `json:"revert_sub,omitempty"`
	Constraint    string  `json:"constraint,omitempty"`
	Penalty       float64 `json:"penalty"`
	Langs         uint64  `json:"langs"`
	MinBaseLength *int    `json:"min_base_length,omitempty"`
}

// Persisted is the full on-disk representation of a trained tokenizer.
type Persisted struct {
	Alphabet           string     `json:"alphabet"`
	ReservedTokens     []string   `json:"reserved_tokens"`
	Normalization      int        `json:"normalization"`
	PreserveSoftHyphen bool       `json:"preserve_soft_hyphen"`
	Bases              []string   `json:"bases"`
	VocabLogits        []float64  `json:"vocab_logits"`
	VocabLangs         []uint64   `json:"vocab_langs"`
	// Langs names the language each bit of VocabLangs/a rule's Langs mask
	// stands for: Langs[i] is the language of bit 1<<i. Without this, a
	// reloaded model's language bitmasks are just opaque integers.
	Langs      []string   `json:"langs"`
	Rules      []RuleDict `json:"rules"`
	RuleLogits []float64  `json:"rule_logits"`
	Alpha      float64    `json:"alpha"`
	Beta       float64    `json:"beta"`
	UnkTokenID int        `json:"unk_token_id"`
	MinBaseLen int        `json:"min_base_len"`
	Thumbprint string     `json:"thumbprint"`
}

// mmapThreshold is the file size above which Load prefers a memory-mapped
// read over slurping the whole file into the heap.
const mmapThreshold = 64 << 20 // 64 MiB

// execOnFileLock runs fn while holding an exclusive lock on lockPath,
// retrying the (non-blocking) TryLock with a randomized backoff — mirrors
// the download-lock pattern, repurposed for a local save instead of a
// remote fetch.
func execOnFileLock(lockPath string, fn func() error) error {
	fl := flock.New(lockPath)
	for {
		locked, err := fl.TryLock()
		if err != nil {
			return errors.Wrap(err, "acquiring file lock")
		}
		if locked {
			break
		}
		time.Sleep(time.Duration(1000+rand.Intn(1000)) * time.Millisecond)
	}
	defer fl.Unlock()
	return fn()
}

// Save writes data to path atomically: encode to a uuid-suffixed temp file
// under an exclusive file lock, then rename over the destination. The uuid
// suffix (rather than a fixed ".tmp" name) keeps concurrent writers of the
// same path from colliding on the same temp path.
func Save(path string, data Persisted) error {
	return execOnFileLock(path+".lock", func() error {
		tmpPath := fmt.Sprintf("%s.tmp-%s", path, uuid.NewString())
		f, err := os.Create(tmpPath)
		if err != nil {
			return errors.Wrap(err, "creating temp file")
		}
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(data); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return errors.Wrap(err, "encoding tokenizer json")
		}
		if err := f.Close(); err != nil {
			os.Remove(tmpPath)
			return errors.Wrap(err, "closing temp file")
		}
		if err := os.Rename(tmpPath, path); err != nil {
			os.Remove(tmpPath)
			return errors.Wrap(err, "renaming temp file into place")
		}
		return nil
	})
}

// Load reads and parses a persisted tokenizer from path, using a
// memory-mapped read for files at or above mmapThreshold.
func Load(path string) (Persisted, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Persisted{}, errors.Wrap(err, "stat tokenizer file")
	}
	if info.Size() >= mmapThreshold {
		return loadMmap(path)
	}

	var data Persisted
	raw, err := os.ReadFile(path)
	if err != nil {
		return data, errors.Wrap(err, "reading tokenizer file")
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return data, errors.Wrap(err, "parsing tokenizer json")
	}
	return data, nil
}

func loadMmap(path string) (Persisted, error) {
	var data Persisted
	r, err := mmap.Open(path)
	if err != nil {
		return data, errors.Wrap(err, "mmap-opening tokenizer file")
	}
	defer r.Close()

	buf := make([]byte, r.Len())
	if _, err := r.ReadAt(buf, 0); err != nil {
		return data, errors.Wrap(err, "reading mmap region")
	}
	if err := json.Unmarshal(buf, &data); err != nil {
		return data, errors.Wrap(err, "parsing tokenizer json")
	}
	return data, nil
}
