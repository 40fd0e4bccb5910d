package metrics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func openTestDB(t *testing.T, path string) *bolt.DB {
	t.Helper()

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	return db
}

func TestCollectorPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.db")
	db := openTestDB(t, path)

	m := New()
	c, err := NewCollector(db, m, path, time.Hour)
	if err != nil {
		t.Fatalf("Failed to create collector: %v", err)
	}

	m.SubmissionsTotal.WithLabelValues("accepted").Add(3)
	m.TestEmailsTotal.WithLabelValues("sandbox", "sent").Inc()
	m.VerificationStepsTotal.WithLabelValues("Companies Found", "failed").Inc()
	// not persisted
	m.APIErrorsTotal.WithLabelValues("not_found").Inc()

	if err := c.Stop(); err != nil {
		t.Fatalf("Failed to stop collector: %v", err)
	}
	db.Close()

	db2 := openTestDB(t, path)
	defer db2.Close()

	m2 := New()
	c2, err := NewCollector(db2, m2, path, time.Hour)
	if err != nil {
		t.Fatalf("Failed to recreate collector: %v", err)
	}
	defer c2.Stop()

	if got := counterValue(t, m2.SubmissionsTotal, "accepted"); got != 3 {
		t.Errorf("restored submissions = %f, want 3", got)
	}
	if got := counterValue(t, m2.TestEmailsTotal, "sandbox", "sent"); got != 1 {
		t.Errorf("restored test emails = %f, want 1", got)
	}
	if got := counterValue(t, m2.VerificationStepsTotal, "Companies Found", "failed"); got != 1 {
		t.Errorf("restored steps = %f, want 1", got)
	}
	if got := counterValue(t, m2.APIErrorsTotal, "not_found"); got != 0 {
		t.Errorf("api errors should not persist, got %f", got)
	}
}

func TestCollectorSystemMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.db")
	db := openTestDB(t, path)
	defer db.Close()

	m := New()
	c, err := NewCollector(db, m, path, time.Hour)
	if err != nil {
		t.Fatalf("Failed to create collector: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	if got := gaugeValue(t, m.Goroutines); got <= 0 {
		t.Errorf("goroutines = %f, want > 0", got)
	}
	if got := gaugeValue(t, m.StorageUsedBytes); got <= 0 {
		t.Errorf("storage bytes = %f, want > 0", got)
	}

	if err := c.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	// second Stop is a no-op
	if err := c.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestCollectorIgnoresCorruptData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.db")
	db := openTestDB(t, path)
	defer db.Close()

	err := db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketMetrics)
		if err != nil {
			return err
		}
		return b.Put(countersKey, []byte("{not json"))
	})
	if err != nil {
		t.Fatal(err)
	}

	c, err := NewCollector(db, New(), path, time.Hour)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	c.Stop()
}
