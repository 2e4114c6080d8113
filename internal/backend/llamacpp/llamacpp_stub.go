//go:build !llama

package llamacpp

import (
	"github.com/rs/zerolog"

	"inferd/internal/registry"
)

// Built indicates this binary carries real llama support.
const Built = false

// Register is a no-op without the 'llama' build tag.
func Register(_ *registry.Modules, _ *registry.Services, log zerolog.Logger, _, _ int) error {
	log.Debug().Msg("llama support not built, generation backend skipped")
	return nil
}
