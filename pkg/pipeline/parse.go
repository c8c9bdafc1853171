package pipeline

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/overclock/pkg/errors"
)

// DecodeOptions parses a TOML plan and validates it.
func DecodeOptions(data []byte) (*Options, error) {
	var opts Options
	md, err := toml.Decode(string(data), &opts)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode plan")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown plan key %q", undecoded[0].String())
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	return &opts, nil
}

// LoadOptions reads a plan file. A relative catalog path is resolved
// against the plan's directory.
func LoadOptions(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeNotFound, err, "plan file %s", path)
		}
		return nil, err
	}
	opts, err := DecodeOptions(data)
	if err != nil {
		return nil, err
	}
	if opts.Catalog != "" && !filepath.IsAbs(opts.Catalog) {
		opts.Catalog = filepath.Join(filepath.Dir(path), opts.Catalog)
	}
	return opts, nil
}
