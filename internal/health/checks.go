package health

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/audioalchemy/audioalchemy/internal/capability"
	"github.com/audioalchemy/audioalchemy/internal/store"
)

// BackendsChecker reports ready when at least one synthesis backend passed
// its startup probe. The service can limp along on the basic engine alone,
// so a single available backend is sufficient.
func BackendsChecker(caps *capability.Registry) Checker {
	return Checker{
		Name: "backends",
		Check: func(_ context.Context) error {
			for name, ok := range caps.Snapshot() {
				if name != "ffmpeg" && ok {
					return nil
				}
			}
			return errors.New("no synthesis backend available")
		},
	}
}

// UploadsChecker reports ready when the uploads directory is writable.
func UploadsChecker(dir string) Checker {
	return Checker{
		Name: "uploads",
		Check: func(_ context.Context) error {
			f, err := os.CreateTemp(dir, ".probe-*")
			if err != nil {
				return fmt.Errorf("uploads dir not writable: %w", err)
			}
			name := f.Name()
			f.Close()
			os.Remove(name)
			return nil
		},
	}
}

// StoreChecker reports ready when the persistent store can be read.
func StoreChecker(st *store.Store) Checker {
	return Checker{
		Name: "store",
		Check: func(_ context.Context) error {
			if _, err := st.Preferences(); err != nil {
				return fmt.Errorf("store unreadable: %w", err)
			}
			return nil
		},
	}
}
