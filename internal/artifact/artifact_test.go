package artifact_test

import (
	"os"
	"testing"

	"github.com/quenra/kalliope/internal/artifact"
)

func newStore(t *testing.T) *artifact.Store {
	t.Helper()
	s, err := artifact.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func exists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Stat(path)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("stat %q: %v", path, err)
	}
	return err == nil
}

func TestScope_ReleaseAllRemovesEverything(t *testing.T) {
	t.Parallel()

	sc := newStore(t).NewScope()

	var paths []string
	for range 3 {
		p, err := sc.CreatePath("utterance-*.wav")
		if err != nil {
			t.Fatalf("CreatePath: %v", err)
		}
		paths = append(paths, p)
	}
	if sc.Len() != 3 {
		t.Fatalf("Len = %d, want 3", sc.Len())
	}

	sc.ReleaseAll()

	for _, p := range paths {
		if exists(t, p) {
			t.Errorf("%q still exists after ReleaseAll", p)
		}
	}
	if sc.Len() != 0 {
		t.Errorf("Len = %d after ReleaseAll, want 0", sc.Len())
	}

	// Second ReleaseAll is a no-op.
	sc.ReleaseAll()
}

func TestScope_DetachTransfersOwnership(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	sc := store.NewScope()

	p, err := sc.CreatePath("reply-*.wav")
	if err != nil {
		t.Fatalf("CreatePath: %v", err)
	}

	sc.Detach(p)
	sc.ReleaseAll()

	if !exists(t, p) {
		t.Fatal("detached artifact was removed by ReleaseAll")
	}

	store.Remove(p)
	if exists(t, p) {
		t.Error("artifact still exists after Store.Remove")
	}
}

func TestScope_ReleaseSingle(t *testing.T) {
	t.Parallel()

	sc := newStore(t).NewScope()

	a, _ := sc.CreatePath("a-*.wav")
	b, _ := sc.CreatePath("b-*.wav")

	sc.Release(a)

	if exists(t, a) {
		t.Error("released artifact still exists")
	}
	if !exists(t, b) {
		t.Error("unrelated artifact was removed")
	}
	if sc.Len() != 1 {
		t.Errorf("Len = %d, want 1", sc.Len())
	}
}

func TestStore_RemoveMissingIsSilent(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	store.Remove(store.Dir() + "/does-not-exist.wav")
	store.Remove("")
}
