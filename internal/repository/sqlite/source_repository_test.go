package sqlite

import (
	"path/filepath"
	"reflect"
	"testing"

	"platestation/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "nested", "station.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSourceRepository_RoundTrip(t *testing.T) {
	repo := NewSourceRepository(newTestDB(t))

	want := []models.CameraSource{
		models.NewLocalSource(0),
		models.NewLocalSource(2),
		models.NewIPSource("192.168.1.100", "http://192.168.1.100:8080/video"),
	}
	if err := repo.ReplaceAll(want); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}

	got, err := repo.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("List = %+v, expected %+v", got, want)
	}
}

func TestSourceRepository_ReplaceDropsOldRows(t *testing.T) {
	repo := NewSourceRepository(newTestDB(t))

	if err := repo.ReplaceAll([]models.CameraSource{models.NewLocalSource(0), models.NewLocalSource(1)}); err != nil {
		t.Fatal(err)
	}
	if err := repo.ReplaceAll([]models.CameraSource{models.NewLocalSource(3)}); err != nil {
		t.Fatal(err)
	}

	got, err := repo.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].DeviceIndex != 3 {
		t.Errorf("unexpected sources after replace: %+v", got)
	}
}

func TestSourceRepository_EmptyList(t *testing.T) {
	repo := NewSourceRepository(newTestDB(t))

	if err := repo.ReplaceAll(nil); err != nil {
		t.Fatal(err)
	}
	got, err := repo.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty list, got %+v", got)
	}
}

func TestSourceRepository_ConcurrentAccess(t *testing.T) {
	repo := NewSourceRepository(newTestDB(t))

	done := make(chan error, 20)
	for i := 0; i < 10; i++ {
		go func(i int) {
			done <- repo.ReplaceAll([]models.CameraSource{models.NewLocalSource(i)})
		}(i)
		go func() {
			_, err := repo.List()
			done <- err
		}()
	}
	for i := 0; i < 20; i++ {
		if err := <-done; err != nil {
			t.Errorf("concurrent operation failed: %v", err)
		}
	}

	got, err := repo.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("expected exactly one source after concurrent replaces, got %d", len(got))
	}
}
