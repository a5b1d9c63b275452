package sqlinline

import (
	"regexp"
	"strings"
	"testing"
)

var markerLine = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestEveryStatementCarriesAUniqueMarker(t *testing.T) {
	statements := map[string]string{
		"QInsertGeneratedAsset": QInsertGeneratedAsset,
		"QMarkAssetProcessing":  QMarkAssetProcessing,
		"QMarkAssetCompleted":   QMarkAssetCompleted,
		"QMarkAssetFailed":      QMarkAssetFailed,
		"QSelectAssetByID":      QSelectAssetByID,
		"QListAssets":           QListAssets,
		"QReclaimStaleAssets":   QReclaimStaleAssets,
	}

	seen := make(map[string]string)
	for name, stmt := range statements {
		first := strings.SplitN(strings.TrimSpace(stmt), "\n", 2)[0]
		if !markerLine.MatchString(strings.TrimSpace(first)) {
			t.Errorf("%s: first line %q is not a valid marker", name, first)
			continue
		}
		if prev, dup := seen[first]; dup {
			t.Errorf("%s and %s share marker %q", name, prev, first)
		}
		seen[first] = name
	}
}

func TestTerminalWritesAreGuarded(t *testing.T) {
	for name, stmt := range map[string]string{
		"QMarkAssetCompleted": QMarkAssetCompleted,
		"QMarkAssetFailed":    QMarkAssetFailed,
	} {
		if !strings.Contains(stmt, "status in ('PENDING', 'PROCESSING')") {
			t.Errorf("%s must only rewrite non-terminal rows", name)
		}
	}
}
