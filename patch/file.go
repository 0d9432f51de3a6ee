package patch

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwbudde/algo-synth/internal/textcfg"
	"github.com/cwbudde/algo-synth/param"
)

// Ext is the file extension of patch files.
const Ext = ".phx"

// ErrOpen is returned (wrapped) when a patch file cannot be opened.
var ErrOpen = errors.New("patch: cannot open file")

//go:embed sysdefault.phx
var systemDefault string

// ReadOptions controls how a patch file is applied.
type ReadOptions struct {
	// Live supplies the values of locked parameters. Without it locked
	// parameters keep their defaults.
	Live *Patch
	Log  *slog.Logger
}

func (o ReadOptions) logger() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.Default()
}

// ReadFile loads a patch file into p. p is reset to defaults before the file
// is opened, so on ErrOpen it holds a valid default patch.
func ReadFile(filename string, p *Patch, opts ReadOptions) error {
	p.Reset()
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOpen, err)
	}
	defer f.Close()

	if err := read(f, p, opts); err != nil {
		return fmt.Errorf("read patch %s: %w", filename, err)
	}
	p.Filename = filename
	p.Directory = filepath.Dir(filename)
	p.Name = NameFromFile(filename)
	return nil
}

// Read loads patch text from r into p after resetting it to defaults.
func Read(r io.Reader, p *Patch, opts ReadOptions) error {
	p.Reset()
	return read(r, p, opts)
}

func read(r io.Reader, p *Patch, opts ReadOptions) error {
	log := opts.logger()
	lines, err := textcfg.ReadLines(r)
	if err != nil {
		return err
	}
	for _, ln := range lines {
		if len(ln.Tokens) < 2 {
			// section headers and stray words
			continue
		}
		id, ok := param.ByName(ln.Tokens[0])
		if !ok {
			log.Debug("patch: unknown parameter", "line", ln.Num, "name", ln.Tokens[0])
			continue
		}
		prm := &p.Params[id]
		if prm.Info.NoSave || prm.Locked() {
			continue
		}
		cc, err := prm.Info.Parse(ln.Tokens[1])
		if err != nil {
			log.Warn("patch: bad value", "line", ln.Num, "err", err)
			continue
		}
		prm.Set(cc, param.SourcePatch)
	}

	if opts.Live != nil {
		for i := range p.Params {
			prm := &p.Params[i]
			if prm.Locked() {
				prm.Set(opts.Live.Params[i].Value.CCVal, param.SourceLive)
			}
		}
	}
	p.Params[param.MidiChannel].Set(p.Channel(), param.SourceInit)
	p.Modified = false
	InitState(p)
	return nil
}

// Write writes every saved parameter of p, grouped by section. String-valued
// parameters are written by name.
func Write(w io.Writer, p *Patch) error {
	bw := bufio.NewWriter(w)
	section := ""
	for i := range p.Params {
		prm := &p.Params[i]
		if prm.Info.NoSave {
			continue
		}
		if prm.Info.Section != section {
			if section != "" {
				bw.WriteString("}\n")
			}
			section = prm.Info.Section
			fmt.Fprintf(bw, "%s {\n", section)
		}
		fmt.Fprintf(bw, "\t%s = %s;\n", prm.Info.Name, textcfg.Quote(prm.String()))
	}
	if section != "" {
		bw.WriteString("}\n")
	}
	return bw.Flush()
}

// WriteFile saves p to filename and clears Modified on success.
func WriteFile(filename string, p *Patch) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("create patch directory: %w", err)
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create patch file: %w", err)
	}
	if err := Write(f, p); err != nil {
		f.Close()
		return fmt.Errorf("write patch %s: %w", filename, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	p.Filename = filename
	p.Directory = filepath.Dir(filename)
	p.Modified = false
	return nil
}

// NameFromFile derives a patch name from its file name.
func NameFromFile(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, Ext)
}

// UntitledName is the name given to patches loaded from a default.
func UntitledName(progNum int) string {
	return fmt.Sprintf("Untitled-%04d", progNum+1)
}

// LoadWithFallback loads filename into p. When that fails it falls back to
// userDefault and then to the built-in system default, naming the patch after
// its program number. It returns the error of the first attempt, or nil when
// filename loaded. p always ends up holding a valid patch.
func LoadWithFallback(p *Patch, filename, userDefault string, opts ReadOptions) error {
	first := ReadFile(filename, p, opts)
	if first == nil {
		return nil
	}
	log := opts.logger()
	log.Debug("patch: falling back to default", "file", filename, "err", first)

	if userDefault != "" {
		if err := ReadFile(userDefault, p, opts); err == nil {
			p.Filename = ""
			p.Directory = ""
			p.Name = UntitledName(p.ProgNum)
			return first
		}
	}
	if err := Read(strings.NewReader(systemDefault), p, opts); err != nil {
		log.Error("patch: system default unreadable", "err", err)
		p.Reset()
	}
	p.Filename = ""
	p.Directory = ""
	p.Name = UntitledName(p.ProgNum)
	return first
}
