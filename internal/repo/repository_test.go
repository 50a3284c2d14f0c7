package repo_test

import (
	"testing"

	"github.com/hamed0406/pulsewatch/internal/repo"
	"github.com/hamed0406/pulsewatch/internal/repo/memory"
	pg "github.com/hamed0406/pulsewatch/internal/repo/postgres"
	rds "github.com/hamed0406/pulsewatch/internal/repo/redis"
)

// Compile-time interface satisfaction checks.
// Using external test package avoids import cycle.
func TestInterfaceSatisfaction(t *testing.T) {
	var _ repo.TargetStore = memory.New()
	var _ repo.RecordStore = memory.New()
	var _ repo.SSLStore = memory.New()
	var _ repo.SettingsStore = memory.New()

	// Postgres store types compile against the interfaces, too.
	var _ repo.TargetStore = (*pg.Store)(nil)
	var _ repo.RecordStore = (*pg.Store)(nil)
	var _ repo.SSLStore = (*pg.Store)(nil)
	var _ repo.SettingsStore = (*pg.Store)(nil)

	var _ repo.SSLStore = (*rds.SSLCache)(nil)
}
