package feeders

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// TomlFeeder is a feeder that reads TOML files. Unknown keys are rejected.
type TomlFeeder struct {
	Path string
}

// NewTomlFeeder creates a new TomlFeeder that reads from the specified TOML file
func NewTomlFeeder(filePath string) TomlFeeder {
	return TomlFeeder{Path: filePath}
}

// Feed decodes the file into target, keeping fields the file does not set.
func (t TomlFeeder) Feed(target interface{}) error {
	meta, err := toml.DecodeFile(t.Path, target)
	if err != nil {
		return wrapDecodeError("toml", t.Path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return fmt.Errorf("%w in %s: %s", ErrUnknownKeys, t.Path, strings.Join(keys, ", "))
	}
	return nil
}
