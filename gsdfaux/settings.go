package gsdfaux

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/soypat/sdfgraph/glrender"
)

// settingsFile is the TOML layout of render settings. Retry delays are written as
// duration strings such as "10ms".
type settingsFile struct {
	Render glrender.Settings `toml:"render"`
	Timing timing            `toml:"timing"`
}

type timing struct {
	BusyRetry    duration `toml:"busy_retry"`
	CompileRetry duration `toml:"compile_retry"`
}

type duration time.Duration

func (d duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

func (d *duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

// LoadSettings decodes TOML render settings from r. Missing keys keep their
// [glrender.DefaultSettings] value and unknown keys are an error.
func LoadSettings(r io.Reader) (glrender.Settings, error) {
	def := glrender.DefaultSettings()
	f := settingsFile{
		Render: def,
		Timing: timing{BusyRetry: duration(def.BusyRetry), CompileRetry: duration(def.CompileRetry)},
	}
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return def, fmt.Errorf("settings %d:%d: %w", row, col, err)
		}
		return def, fmt.Errorf("settings: %w", err)
	}
	s := f.Render
	s.BusyRetry = time.Duration(f.Timing.BusyRetry)
	s.CompileRetry = time.Duration(f.Timing.CompileRetry)
	if s.MaxSamples < 1 {
		return def, fmt.Errorf("settings: max_samples must be positive, got %d", s.MaxSamples)
	}
	if s.BusyRetry < 0 || s.CompileRetry < 0 {
		return def, errors.New("settings: negative retry delay")
	}
	return s, nil
}

// LoadSettingsFile reads settings from the TOML file called filename.
func LoadSettingsFile(filename string) (glrender.Settings, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return glrender.DefaultSettings(), err
	}
	defer fp.Close()
	return LoadSettings(fp)
}

// WriteSettings encodes s to w as TOML.
func WriteSettings(w io.Writer, s glrender.Settings) error {
	f := settingsFile{
		Render: s,
		Timing: timing{BusyRetry: duration(s.BusyRetry), CompileRetry: duration(s.CompileRetry)},
	}
	return toml.NewEncoder(w).Encode(f)
}
