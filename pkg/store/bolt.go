package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/PuerkitoBio/purell"
	bolt "go.etcd.io/bbolt"

	"github.com/simulot/aspiradl/pkg/dispatcher"
	"github.com/simulot/aspiradl/pkg/models"
)

type logger interface{ Printf(string, ...interface{}) }

type nullLogger struct{}

func (nullLogger) Printf(string, ...interface{}) {}

var historyBucket = []byte("history")

// Entry is what is kept about a target
type Entry struct {
	SpecID      string
	SourceURL   string
	Destination string
	Final       string    // success, failed, cancelled
	Reason      string    // Last reason
	Attempts    int       // Accelerator invocations of the last run
	Reasons     []string  // Outcome of each attempt of the last run
	Size        int64     // Destination size when recorded
	When        time.Time // Record time
}

// StoreBolt is the history kept in a bbolt file
type StoreBolt struct {
	db *bolt.DB
	l  logger
}

// OpenStoreBolt opens or creates the history file
func OpenStoreBolt(filename string, l interface{ Printf(string, ...interface{}) }) (*StoreBolt, error) {
	if l == nil {
		l = nullLogger{}
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, fmt.Errorf("can't create history folder: %w", err)
	}
	db, err := bolt.Open(filename, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("can't open history %q: %w", filename, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(historyBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &StoreBolt{db: db, l: l}, nil
}

func (s *StoreBolt) Close() error {
	return s.db.Close()
}

// Key identifies a target: the normalized source and the destination
func Key(spec models.TransferSpec) []byte {
	u, err := purell.NormalizeURLString(spec.SourceURL, purell.FlagsUsuallySafeGreedy)
	if err != nil {
		u = spec.SourceURL
	}
	d, err := filepath.Abs(spec.Destination)
	if err != nil {
		d = filepath.Clean(spec.Destination)
	}
	return []byte(u + "\x00" + d)
}

// Record saves the result. Skipped and never started transfers are not
// recorded: they don't change what is known of the target.
func (s *StoreBolt) Record(r models.TransferResult) error {
	if r.Final == models.FinalSkipped || (r.Final == models.FinalCancelled && r.AttemptCount() == 0) {
		return nil
	}
	e := Entry{
		SpecID:      r.SpecID,
		SourceURL:   r.Spec.SourceURL,
		Destination: r.Spec.Destination,
		Final:       r.Final.String(),
		Reason:      r.Reason,
		Attempts:    r.AttemptCount(),
		When:        time.Now(),
	}
	for _, a := range r.Attempts {
		e.Reasons = append(e.Reasons, a.Outcome.String())
	}
	if st, err := os.Stat(r.Spec.Destination); err == nil {
		e.Size = st.Size()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(historyBucket).Put(Key(r.Spec), b)
	})
}

func (s *StoreBolt) Get(spec models.TransferSpec) (Entry, error) {
	var e Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(historyBucket).Get(Key(spec))
		if b == nil {
			return ErrorNotFound
		}
		return json.Unmarshal(b, &e)
	})
	return e, err
}

// IsComplete is true when a success is recorded and the file is still on the disk
func (s *StoreBolt) IsComplete(spec models.TransferSpec) bool {
	e, err := s.Get(spec)
	if err != nil {
		return false
	}
	if e.Final != models.FinalSuccess.String() {
		return false
	}
	st, err := os.Stat(spec.Destination)
	return err == nil && !st.IsDir() && st.Size() > 0
}

func (s *StoreBolt) List() ([]Entry, error) {
	entries := []Entry{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(historyBucket).ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("corrupted history entry %q: %w", k, err)
			}
			entries = append(entries, e)
			return nil
		})
	})
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].When.After(entries[j].When) })
	return entries, err
}

// Listen records the results published on the dispatcher
func (s *StoreBolt) Listen(d dispatcher.Subscriber) (cancel func()) {
	return d.Subscribe(func(m *models.Message) {
		if m.Result == nil {
			return
		}
		if err := s.Record(*m.Result); err != nil {
			s.l.Printf("[STORE] Can't record %s: %s", m.SpecID, err)
		}
	})
}
