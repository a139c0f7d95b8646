package port

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/lomo74/mfilemon/monitor/status"
)

// Character capacities of the string arrays in the configuration record
// exchanged with the configuration UI, terminating NUL included.
const (
	maxPath        = 261
	maxUserCommand = 1024
	maxUser        = 257
	maxDomain      = 16
	maxPassword    = 257
)

type recordField struct {
	offset int
	chars  int // 0 for 32 bit integers
}

// Offsets follow the C layout: UTF-16 arrays are 2-byte aligned and the
// BOOL/DWORD/int members 4-byte aligned.
var (
	recPortName    = recordField{0, maxPath}
	recOutputPath  = recordField{522, maxPath}
	recFilePattern = recordField{1044, maxPath}
	recOverwrite   = recordField{1568, 0}
	recUserCommand = recordField{1572, maxUserCommand}
	recExecPath    = recordField{3620, maxPath}
	recWait        = recordField{4144, 0}
	recWaitTimeout = recordField{4148, 0}
	recPipeData    = recordField{4152, 0}
	recHideProcess = recordField{4156, 0}
	recLogLevel    = recordField{4160, 0}
	recUser        = recordField{4164, maxUser}
	recDomain      = recordField{4678, maxDomain}
	recPassword    = recordField{4710, maxPassword}
)

// RecordSize is the size in bytes of a configuration record.
const RecordSize = 5224

// MarshalRecord encodes cfg and the monitor log level as a configuration
// record. Strings longer than their array are truncated.
func MarshalRecord(cfg Config, logLevel int32) []byte {
	b := make([]byte, RecordSize)
	putString(b, recPortName, cfg.Name)
	putString(b, recOutputPath, cfg.OutputPath)
	putString(b, recFilePattern, cfg.FilePattern)
	putBool(b, recOverwrite, cfg.Overwrite)
	putString(b, recUserCommand, cfg.UserCommand)
	putString(b, recExecPath, cfg.ExecPath)
	putBool(b, recWait, cfg.WaitTermination)
	binary.LittleEndian.PutUint32(b[recWaitTimeout.offset:], cfg.WaitTimeout)
	putBool(b, recPipeData, cfg.PipeData)
	putBool(b, recHideProcess, cfg.HideProcess)
	binary.LittleEndian.PutUint32(b[recLogLevel.offset:], uint32(logLevel))
	putString(b, recUser, cfg.User)
	putString(b, recDomain, cfg.Domain)
	putString(b, recPassword, cfg.Password)
	return b
}

// UnmarshalRecord decodes a configuration record. Bytes past RecordSize
// are ignored.
func UnmarshalRecord(b []byte) (Config, int32, error) {
	if len(b) < RecordSize {
		return Config{}, 0, fmt.Errorf("configuration record is %d bytes, want %d: %w", len(b), RecordSize, status.ErrInsufficientBuffer)
	}
	cfg := Config{
		Name:            getString(b, recPortName),
		OutputPath:      getString(b, recOutputPath),
		FilePattern:     getString(b, recFilePattern),
		Overwrite:       getBool(b, recOverwrite),
		UserCommand:     getString(b, recUserCommand),
		ExecPath:        getString(b, recExecPath),
		WaitTermination: getBool(b, recWait),
		WaitTimeout:     binary.LittleEndian.Uint32(b[recWaitTimeout.offset:]),
		PipeData:        getBool(b, recPipeData),
		HideProcess:     getBool(b, recHideProcess),
		User:            getString(b, recUser),
		Domain:          getString(b, recDomain),
		Password:        getString(b, recPassword),
	}
	level := int32(binary.LittleEndian.Uint32(b[recLogLevel.offset:]))
	return cfg, level, nil
}

func putString(b []byte, f recordField, s string) {
	u := utf16.Encode([]rune(s))
	if len(u) > f.chars-1 {
		u = u[:f.chars-1]
	}
	for i, c := range u {
		binary.LittleEndian.PutUint16(b[f.offset+2*i:], c)
	}
}

func getString(b []byte, f recordField) string {
	u := make([]uint16, 0, f.chars)
	for i := 0; i < f.chars; i++ {
		c := binary.LittleEndian.Uint16(b[f.offset+2*i:])
		if c == 0 {
			break
		}
		u = append(u, c)
	}
	return string(utf16.Decode(u))
}

func putBool(b []byte, f recordField, v bool) {
	if v {
		binary.LittleEndian.PutUint32(b[f.offset:], 1)
	}
}

func getBool(b []byte, f recordField) bool {
	return binary.LittleEndian.Uint32(b[f.offset:]) != 0
}
