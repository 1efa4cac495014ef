package yaraengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hillu/go-yara/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmguard/yarad/services/yarad/scanner"
)

const eicar = `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`

const eicarRule = `rule EICAR_Test_File {
    strings:
        $a = "EICAR-STANDARD-ANTIVIRUS-TEST-FILE"
    condition:
        $a
}
`

func TestCompileAndScanEicar(t *testing.T) {
	rulesDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rulesDir, "eicar.yar"), []byte(eicarRule), 0o644))
	// ignored: wrong extension
	require.NoError(t, os.WriteFile(filepath.Join(rulesDir, "README.md"), []byte("not a rule"), 0o644))

	b, err := scanner.Compile(context.Background(), New(), rulesDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"EICAR_Test_File"}, b.Rules.RuleNames())
	assert.Len(t, b.Files, 1)

	target := filepath.Join(t.TempDir(), "eicar.com")
	require.NoError(t, os.WriteFile(target, []byte(eicar), 0o644))
	got, err := b.Rules.ScanFile(context.Background(), target, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"EICAR_Test_File"}, got)

	clean := filepath.Join(t.TempDir(), "clean.txt")
	require.NoError(t, os.WriteFile(clean, []byte("hello"), 0o644))
	got, err = b.Rules.ScanFile(context.Background(), clean, 10*time.Second)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCompileSyntaxError(t *testing.T) {
	rulesDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rulesDir, "bad.yara"), []byte("rule broken { condition: }"), 0o644))

	_, err := scanner.Compile(context.Background(), New(), rulesDir)
	var ce *scanner.CompileError
	require.ErrorAs(t, err, &ce)
	assert.NotEmpty(t, ce.Diagnostics)
	assert.Contains(t, ce.File, "bad.yara")
}

func TestScanErrorMapsTimeout(t *testing.T) {
	// the code must be the one go-yara renders from libyara's header
	assert.Equal(t, "scan timeout", yara.Error(errScanTimeout).Error())

	err := scanError("/tmp/big.bin", yara.Error(errScanTimeout))
	assert.ErrorIs(t, err, scanner.ErrScanTimeout)
	assert.Contains(t, err.Error(), "/tmp/big.bin")

	err = scanError("/tmp/missing", yara.Error(3))
	assert.NotErrorIs(t, err, scanner.ErrScanTimeout)
	var yerr yara.Error
	require.ErrorAs(t, err, &yerr)
	assert.Equal(t, yara.Error(3), yerr)
}

func TestWholeSeconds(t *testing.T) {
	cases := map[time.Duration]time.Duration{
		0:                       0,
		time.Millisecond:        time.Second,
		500 * time.Millisecond:  time.Second,
		time.Second:             time.Second,
		1500 * time.Millisecond: 2 * time.Second,
		60 * time.Second:        60 * time.Second,
	}
	for in, want := range cases {
		assert.Equal(t, want, wholeSeconds(in), "timeout %s", in)
	}
}

func TestSubSecondTimeoutStillScans(t *testing.T) {
	rulesDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rulesDir, "eicar.yar"), []byte(eicarRule), 0o644))
	b, err := scanner.Compile(context.Background(), New(), rulesDir)
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "eicar.com")
	require.NoError(t, os.WriteFile(target, []byte(eicar), 0o644))
	got, err := b.Rules.ScanFile(context.Background(), target, 200*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []string{"EICAR_Test_File"}, got)
}
