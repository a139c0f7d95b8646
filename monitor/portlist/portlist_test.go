package portlist

import (
	"encoding/binary"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lomo74/mfilemon/common/logger"
	"github.com/lomo74/mfilemon/common/util"
	"github.com/lomo74/mfilemon/monitor/platform"
	"github.com/lomo74/mfilemon/monitor/port"
	"github.com/lomo74/mfilemon/monitor/spooler"
	"github.com/lomo74/mfilemon/monitor/status"
	"github.com/lomo74/mfilemon/monitor/store"
)

func newRegistry(t *testing.T, st store.Store) *Registry {
	t.Helper()
	if st == nil {
		st = store.NewMemory()
	}
	env := port.Env{Spooler: spooler.NewQueue(), Platform: &platform.Fake{}}
	r := New(st, env, Options{Logger: logger.New(logger.DEBUG, "", 100)})
	t.Cleanup(r.Close)
	return r
}

func testConfig(t *testing.T, name string) port.Config {
	cfg := port.DefaultConfig(name)
	cfg.OutputPath = t.TempDir()
	return cfg
}

// ===== Registry Tests =====

func TestAddFindDelete(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	r := newRegistry(t, st)

	p, err := r.AddPort(testConfig(t, "PDF:"), true)
	require.NoError(t, err)
	assert.Same(t, p, r.FindPort("pdf:"))
	assert.Equal(t, 1, r.Len())

	_, err = r.AddPort(testConfig(t, "Pdf:"), true)
	assert.ErrorIs(t, err, status.ErrAlreadyExists)

	keys, err := st.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"PDF:"}, keys)

	require.NoError(t, r.DeletePort("PDF:"))
	assert.Nil(t, r.FindPort("PDF:"))
	assert.Equal(t, port.Closed, p.State())
	keys, err = st.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)

	assert.ErrorIs(t, r.DeletePort("PDF:"), status.ErrFileNotFound)
}

func TestAddPortWithoutPersist(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	r := newRegistry(t, st)
	_, err := r.AddPort(testConfig(t, "TMP:"), false)
	require.NoError(t, err)

	keys, err := st.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)

	// deleting a port that was never saved is fine
	require.NoError(t, r.DeletePort("TMP:"))
}

func TestAddPortRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, nil)
	cfg := testConfig(t, "BAD:")
	cfg.FilePattern = "a|b"
	_, err := r.AddPort(cfg, true)
	require.Error(t, err)
	assert.Zero(t, r.Len())
}

func TestNamesKeepInsertionOrder(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, nil)
	for _, n := range []string{"C:", "A:", "B:"} {
		_, err := r.AddPort(testConfig(t, n), false)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"C:", "A:", "B:"}, r.Names())
	require.NoError(t, r.DeletePort("a:"))
	assert.Equal(t, []string{"C:", "B:"}, r.Names())
}

// ===== Persistence Tests =====

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	r := newRegistry(t, st)

	cfg := testConfig(t, "Archive:")
	cfg.FilePattern = "%Y-%m-%d\\%i.pdf"
	cfg.Overwrite = true
	cfg.UserCommand = `notify "%f"`
	cfg.ExecPath = cfg.OutputPath
	cfg.WaitTermination = true
	cfg.WaitTimeout = 60
	cfg.PipeData = false
	cfg.HideProcess = false
	cfg.User = "svc"
	cfg.Domain = "CORP"
	cfg.Password = "s3cret"
	_, err := r.AddPort(cfg, true)
	require.NoError(t, err)
	require.NoError(t, r.SaveLogLevel(logger.WARNINGS))

	loaded := newRegistry(t, st)
	require.NoError(t, loaded.LoadFromStore())
	p := loaded.FindPort("archive:")
	require.NotNil(t, p)
	assert.Equal(t, cfg, p.Config())
	assert.Equal(t, logger.WARNINGS, loaded.log.GetLevel())

	// the password is stored encrypted
	k, err := st.Open("Archive:")
	require.NoError(t, err)
	blob, err := k.Binary(ValuePassword)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "s3cret")
	assert.Equal(t, "s3cret", util.OpenPassword(util.MonitorKey(), blob))
}

func TestLoadAppliesDefaultsAndSkipsBrokenKeys(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	out := t.TempDir()

	k, err := st.Create("Minimal:")
	require.NoError(t, err)
	require.NoError(t, k.SetString(ValueOutputPath, out))
	require.NoError(t, k.SetString(ValueFilePattern, ""))
	require.NoError(t, store.SetBoolValue(k, ValueOverwrite, false))
	require.NoError(t, k.SetBinary(ValuePassword, []byte{1, 2, 3}))

	// no FilePattern value at all
	k, err = st.Create("Broken:")
	require.NoError(t, err)
	require.NoError(t, k.SetString(ValueOutputPath, out))
	require.NoError(t, store.SetBoolValue(k, ValueOverwrite, false))

	r := newRegistry(t, st)
	require.NoError(t, r.LoadFromStore())
	assert.Equal(t, []string{"Minimal:"}, r.Names())

	cfg := r.FindPort("Minimal:").Config()
	assert.Equal(t, "%i.prn", cfg.FilePattern)
	assert.Equal(t, uint32(10), cfg.WaitTimeout)
	assert.True(t, cfg.HideProcess)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, ".", cfg.Domain)
}

func TestSaveToStoreAndSavePort(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	r := newRegistry(t, st)
	p, err := r.AddPort(testConfig(t, "P1:"), false)
	require.NoError(t, err)
	_, err = r.AddPort(testConfig(t, "P2:"), false)
	require.NoError(t, err)

	require.NoError(t, r.SaveToStore())
	keys, err := st.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"P1:", "P2:"}, keys)

	cfg := p.Config()
	cfg.FilePattern = "job%j.prn"
	require.NoError(t, p.SetConfig(cfg))
	require.NoError(t, r.SavePort("p1:"))
	k, err := st.Open("P1:")
	require.NoError(t, err)
	v, err := k.String(ValueFilePattern)
	require.NoError(t, err)
	assert.Equal(t, "job%j.prn", v)

	assert.ErrorIs(t, r.SavePort("nope"), status.ErrFileNotFound)
}

// ===== Enumeration Tests =====

// readString follows a pointer written by EnumPorts.
func readString(buf []byte, base uintptr, ptr uint64) string {
	return DecodeString(buf[int(ptr-uint64(base)):])
}

func readPointer(buf []byte, off int) uint64 {
	if PointerSize == 8 {
		return binary.LittleEndian.Uint64(buf[off:])
	}
	return uint64(binary.LittleEndian.Uint32(buf[off:]))
}

func TestEnumPortsLevel1(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, nil)
	for _, n := range []string{"PDF:", "Archive:"} {
		_, err := r.AddPort(testConfig(t, n), false)
		require.NoError(t, err)
	}

	needed, returned, err := r.EnumPorts(1, nil, 0)
	assert.ErrorIs(t, err, status.ErrInsufficientBuffer)
	assert.Zero(t, returned)
	wantSize := 2*PointerSize + 2*len("PDF:\x00") + 2*len("Archive:\x00")
	assert.Equal(t, uint32(wantSize), needed)

	buf := make([]byte, needed)
	const base = uintptr(0x10000)
	needed2, returned, err := r.EnumPorts(1, buf, base)
	require.NoError(t, err)
	assert.Equal(t, needed, needed2)
	assert.Equal(t, uint32(2), returned)
	assert.Equal(t, "PDF:", readString(buf, base, readPointer(buf, 0)))
	assert.Equal(t, "Archive:", readString(buf, base, readPointer(buf, PointerSize)))
}

func TestEnumPortsLevel2(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, nil)
	_, err := r.AddPort(testConfig(t, "PDF:"), false)
	require.NoError(t, err)

	needed, _, err := r.EnumPorts(2, nil, 0)
	require.ErrorIs(t, err, status.ErrInsufficientBuffer)

	// a larger buffer than needed is fine; strings are packed at its end
	buf := make([]byte, needed+16)
	const base = uintptr(0x20000)
	_, returned, err := r.EnumPorts(2, buf, base)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), returned)

	assert.Equal(t, "PDF:", readString(buf, base, readPointer(buf, 0)))
	assert.Equal(t, "mfilemon", readString(buf, base, readPointer(buf, PointerSize)))
	assert.Equal(t, "Multi file port", readString(buf, base, readPointer(buf, 2*PointerSize)))
	assert.Zero(t, binary.LittleEndian.Uint32(buf[3*PointerSize:]))
	assert.Zero(t, binary.LittleEndian.Uint32(buf[3*PointerSize+4:]))
}

func TestEnumPortsBadLevel(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, nil)
	_, _, err := r.EnumPorts(3, make([]byte, 64), 0)
	assert.ErrorIs(t, err, status.ErrInvalidLevel)
}

func TestEnumPortsEmpty(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, nil)
	needed, returned, err := r.EnumPorts(2, nil, 0)
	require.NoError(t, err)
	assert.Zero(t, needed)
	assert.Zero(t, returned)
}

func TestConcurrentEnumerateAndAdd(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, nil)
	out := t.TempDir()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			cfg := port.DefaultConfig(fmt.Sprintf("P%02d:", i))
			cfg.OutputPath = out
			_, err := r.AddPort(cfg, false)
			assert.NoError(t, err)
		}
	}()

	for i := 0; i < 200; i++ {
		needed, _, _ := r.EnumPorts(1, nil, 0)
		buf := make([]byte, needed)
		needed2, returned, err := r.EnumPorts(1, buf, 0x1000)
		if err != nil {
			// a port was added between the two calls
			assert.ErrorIs(t, err, status.ErrInsufficientBuffer)
			assert.Greater(t, needed2, needed)
			continue
		}
		// every listed entry is complete
		for j := 0; j < int(returned); j++ {
			name := readString(buf, 0x1000, readPointer(buf, j*PointerSize))
			assert.Regexp(t, `^P\d\d:$`, name)
		}
	}
	wg.Wait()
	assert.Equal(t, 50, r.Len())
}

func TestDecodeListing(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, nil)
	for _, name := range []string{"PDF:", "Archive:"} {
		_, err := r.AddPort(testConfig(t, name), false)
		require.NoError(t, err)
	}

	for _, level := range []uint32{1, 2} {
		needed, _, _ := r.EnumPorts(level, nil, 0)
		buf := make([]byte, needed)
		const base = uintptr(0x4000)
		_, returned, err := r.EnumPorts(level, buf, base)
		require.NoError(t, err)

		infos, err := DecodeListing(level, buf, base, returned)
		require.NoError(t, err)
		require.Len(t, infos, 2)
		assert.Equal(t, "PDF:", infos[0].Name)
		assert.Equal(t, "Archive:", infos[1].Name)
		if level == 2 {
			assert.Equal(t, PortInfo{Name: "PDF:", Monitor: "mfilemon", Description: "Multi file port"}, infos[0])
		} else {
			assert.Empty(t, infos[0].Monitor)
		}
	}

	_, err := DecodeListing(3, nil, 0, 0)
	assert.ErrorIs(t, err, status.ErrInvalidLevel)
	_, err = DecodeListing(1, make([]byte, PointerSize), 0x1000, 1)
	assert.ErrorIs(t, err, status.ErrInvalidData)
	_, err = DecodeListing(2, nil, 0, 1)
	assert.ErrorIs(t, err, status.ErrInvalidData)
}
