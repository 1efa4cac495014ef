//go:build yara

package daemon

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmguard/yarad/services/yarad/config"
	"github.com/swarmguard/yarad/services/yarad/protocol"
	"github.com/swarmguard/yarad/services/yarad/scanner"
	"github.com/swarmguard/yarad/services/yarad/scanner/yaraengine"
)

const eicar = `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`

func TestEicarEndToEnd(t *testing.T) {
	rulesDir := t.TempDir()
	writeFile(t, filepath.Join(rulesDir, "eicar.yar"), `rule EICAR_Test_File {
    strings:
        $a = "EICAR-STANDARD-ANTIVIRUS-TEST-FILE"
    condition:
        $a
}
`)
	cfg := config.Default()
	cfg.RulesDir = rulesDir
	holder := config.NewHolder("", cfg)
	store, err := scanner.NewStore(context.Background(), yaraengine.New(), rulesDir)
	require.NoError(t, err)
	d := NewDispatcher(store, holder, NewReloader(store, holder, nil, nil), DispatcherOptions{Version: "test"})
	dial := serve(t, d)

	samples := t.TempDir()
	infected := filepath.Join(samples, "eicar.com")
	clean := filepath.Join(samples, "readme.txt")
	writeFile(t, infected, eicar)
	writeFile(t, clean, "nothing here")

	scanFile, err := protocol.NewPathCommand(protocol.KindScan, infected)
	require.NoError(t, err)
	scanDir, err := protocol.NewPathCommand(protocol.KindScan, samples)
	require.NoError(t, err)
	wire, err := protocol.Encode(protocol.DelimNewline, scanFile, protocol.Reload, scanDir)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"EICAR_Test_File: " + infected,
		"RELOADING",
		"EICAR_Test_File: " + infected,
		"OK: " + clean,
	}, roundTrip(t, dial, wire))
}
