package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type field struct {
	key     string
	comment string
	get     func(c *Config) string
	set     func(c *Config, v string) error
	boolean bool
}

func stringField(key, comment string, p func(*Config) *string) field {
	return field{key: key, comment: comment,
		get: func(c *Config) string {
			// keep surrounding blanks, e.g. a ramp starting with a space
			if v := *p(c); strings.TrimSpace(v) != v {
				return strconv.Quote(v)
			}
			return *p(c)
		},
		set: func(c *Config, v string) error {
			*p(c) = v
			return nil
		},
	}
}

func intField(key, comment string, p func(*Config) *int) field {
	return field{key: key, comment: comment,
		get: func(c *Config) string { return strconv.Itoa(*p(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*p(c) = n
			return nil
		},
	}
}

func boolField(key, comment string, p func(*Config) *bool) field {
	f := field{key: key, comment: comment, boolean: true}
	f.get = func(c *Config) string { return strconv.FormatBool(*p(c)) }
	f.set = func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*p(c) = b
		return nil
	}
	return f
}

func floatField(key, comment string, p func(*Config) *float64) field {
	return field{key: key, comment: comment,
		get: func(c *Config) string { return strconv.FormatFloat(*p(c), 'g', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			*p(c) = f
			return nil
		},
	}
}

var fields = []field{
	stringField("color", "rgb | 256 | 16 | gray", func(c *Config) *string { return &c.Color }),
	stringField("color_proc", "both | char-only | none", func(c *Config) *string { return &c.ColorProc }),
	stringField("charset", "literal ramp, or #long #short #2 #blocks #outline #bold-outline", func(c *Config) *string { return &c.Charset }),
	stringField("scaling", "nearest | fast-bilinear | bilinear | bicubic", func(c *Config) *string { return &c.Scaling }),
	stringField("sync", "enabled | draw-all | disabled", func(c *Config) *string { return &c.Sync }),
	intField("scanlines", "interlace parts, 0 or 1 disables", func(c *Config) *int { return &c.Scanlines }),
	intField("scanline_height", "rows per interlace band", func(c *Config) *int { return &c.ScanlineHeight }),
	intField("brightness", "luminance randomization, -255..255", func(c *Config) *int { return &c.Brightness }),
	floatField("volume", "initial volume, 0..1", func(c *Config) *float64 { return &c.Volume }),
	intField("width", "grid size override, 0 uses the terminal", func(c *Config) *int { return &c.Width }),
	intField("height", "", func(c *Config) *int { return &c.Height }),
	boolField("fill", "stretch to the whole terminal", func(c *Config) *bool { return &c.Fill }),
	stringField("vf", "ffmpeg filter before scaling", func(c *Config) *string { return &c.VF }),
	stringField("svf", "ffmpeg filter after scaling", func(c *Config) *string { return &c.SVF }),
	stringField("af", "ffmpeg audio filter", func(c *Config) *string { return &c.AF }),
	boolField("preload", "fill the frame queue before the first frame", func(c *Config) *bool { return &c.Preload }),
	boolField("no_audio", "", func(c *Config) *bool { return &c.NoAudio }),
	boolField("no_keys", "", func(c *Config) *bool { return &c.NoKeys }),
	boolField("no_clear", "", func(c *Config) *bool { return &c.NoClear }),
	stringField("audio_backend", "beep | oto", func(c *Config) *string { return &c.AudioBackend }),
	stringField("metrics_addr", "serve prometheus metrics, e.g. :9090", func(c *Config) *string { return &c.MetricsAddr }),
	stringField("log_file", "", func(c *Config) *string { return &c.LogFile }),
	stringField("log_level", "debug | info | warn | error", func(c *Config) *string { return &c.LogLevel }),
	intField("font_width", "cell size in pixels, 0 asks the terminal", func(c *Config) *int { return &c.FontWidth }),
	intField("font_height", "", func(c *Config) *int { return &c.FontHeight }),
}

func writeConf(path string, c Config) error {
	var b strings.Builder
	b.WriteString("# conreel config\n")
	for _, f := range fields {
		if f.comment != "" {
			fmt.Fprintf(&b, "\n# %s\n", f.comment)
		}
		fmt.Fprintf(&b, "%s = %s\n", f.key, f.get(&c))
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}

type entry struct {
	key   string
	value string
	line  int
}

func parseConf(path string) ([]entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var result []entry
	scanner := bufio.NewScanner(file)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
			uq, err := strconv.Unquote(v)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", n, err)
			}
			v = uq
		}
		result = append(result, entry{strings.TrimSpace(k), v, n})
	}
	return result, scanner.Err()
}
