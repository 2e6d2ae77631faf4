package scan

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestScan_ClassifiesRawAndDerivative(t *testing.T) {
	dir := t.TempDir()
	rawPath := writeFile(t, dir, "IMG_0001.CR2")
	writeFile(t, dir, "IMG_0001_Edit.tif")
	writeFile(t, dir, "IMG_0001.jpg")

	result, err := NewScanner().Scan(dir)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	if len(result.Bases) != 1 {
		t.Fatalf("expected 1 base, got %d", len(result.Bases))
	}
	base := result.Bases[0]
	if base.Path != rawPath {
		t.Errorf("expected base %s, got %s", rawPath, base.Path)
	}
	if base.Kind != RawFrameCounter {
		t.Errorf("expected kind raw, got %s", base.Kind)
	}
	if base.FamilyKey != "IMG_0001" {
		t.Errorf("expected family key IMG_0001, got %q", base.FamilyKey)
	}

	devs := result.DerivativesOf(base)
	if len(devs) != 2 {
		t.Fatalf("expected 2 derivatives, got %d", len(devs))
	}
	if result.Counters.Derivatives != 2 {
		t.Errorf("expected derivative counter 2, got %d", result.Counters.Derivatives)
	}
}

func TestScan_DerivativeSharesDirectoryWithBase(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "edits")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, root, "IMG_0001.CR2")
	// Same family key but a different directory: must not attach.
	writeFile(t, sub, "IMG_0001.jpg")

	result, err := NewScanner().Scan(root)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if result.Counters.Derivatives != 0 {
		t.Errorf("expected 0 derivatives, got %d", result.Counters.Derivatives)
	}
	if result.Counters.OrphansPromoted != 1 {
		t.Errorf("expected 1 promoted orphan, got %d", result.Counters.OrphansPromoted)
	}
	for _, b := range result.Bases {
		for _, d := range result.DerivativesOf(b) {
			if filepath.Dir(d.Path) != filepath.Dir(b.Path) {
				t.Errorf("derivative %s attached across directories to %s", d.Path, b.Path)
			}
		}
	}
}

func TestScan_CinemaTiffIsBaseNotDerivative(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "A006_C001_0315GH_S000.0000127.tif")
	writeFile(t, dir, "A006_C001_0315GH_S001.0000127.tif")
	writeFile(t, dir, "A006_C001_0315GH.0000127.tif")

	result, err := NewScanner().Scan(dir)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(result.Bases) != 3 {
		t.Fatalf("expected 3 bases, got %d", len(result.Bases))
	}

	kinds := map[Kind]int{}
	for _, b := range result.Bases {
		kinds[b.Kind]++
		if b.ClipKey != "A006_C001_0315GH_0000127" {
			t.Errorf("unexpected clip key %q for %s", b.ClipKey, b.Path)
		}
	}
	if kinds[CinemaBracketedTiff] != 2 {
		t.Errorf("expected 2 bracketed tiffs, got %d", kinds[CinemaBracketedTiff])
	}
	if kinds[CinemaMergedTiff] != 1 {
		t.Errorf("expected 1 merged tiff, got %d", kinds[CinemaMergedTiff])
	}
}

func TestScan_OrphanPromotion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "scan.psd")

	result, err := NewScanner().Scan(dir)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(result.Bases) != 1 {
		t.Fatalf("expected 1 promoted base, got %d", len(result.Bases))
	}
	orphan := result.Bases[0]
	if orphan.Kind != PromotedOrphan {
		t.Errorf("expected promoted orphan, got %s", orphan.Kind)
	}
	if len(result.DerivativesOf(orphan)) != 0 {
		t.Error("promoted orphan must have an empty derivative list")
	}
}

func TestScan_SkipsHiddenEntries(t *testing.T) {
	root := t.TempDir()
	hidden := filepath.Join(root, ".thumbnails")
	dunder := filepath.Join(root, "__cache")
	for _, d := range []string{hidden, dunder} {
		if err := os.Mkdir(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	writeFile(t, hidden, "IMG_0001.CR2")
	writeFile(t, dunder, "IMG_0002.CR2")
	writeFile(t, root, ".IMG_0003.CR2")
	writeFile(t, root, "IMG_0004.CR2")

	result, err := NewScanner().Scan(root)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(result.Bases) != 1 {
		t.Fatalf("expected hidden entries skipped, got %d bases", len(result.Bases))
	}
}

func TestScan_EmptyDirectory(t *testing.T) {
	result, err := NewScanner().Scan(t.TempDir())
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(result.Bases) != 0 {
		t.Errorf("expected empty result, got %d bases", len(result.Bases))
	}
}

func TestScan_MissingRootIsFatal(t *testing.T) {
	if _, err := NewScanner().Scan(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for a missing scan root")
	}
}

func TestScan_ResultsSortedByPath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "IMG_0003.CR2")
	writeFile(t, dir, "IMG_0001.CR2")
	writeFile(t, dir, "IMG_0002.CR2")

	result, err := NewScanner().Scan(dir)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	for i := 1; i < len(result.Bases); i++ {
		if result.Bases[i-1].Path >= result.Bases[i].Path {
			t.Fatalf("bases out of order: %s >= %s", result.Bases[i-1].Path, result.Bases[i].Path)
		}
	}
}
