package ports

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terabiome/archdev/internal/errdefs"
)

// shellRunner executes command lines with the local shell in place of a host.
type shellRunner struct{}

func (shellRunner) Execute(ctx context.Context, host, command string) (string, error) {
	out, err := exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
	return string(out), err
}

func TestRemoteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "ports")
	store := NewRemoteStore(shellRunner{}, dir, discardLogger())

	res := Reservation{Name: "vm-8g-50g-a1b2c3", Host: "h1", SSHPort: 2242, VNCPort: 5977}
	require.NoError(t, store.Put(ctx, res))

	raw, err := os.ReadFile(filepath.Join(dir, "vm-8g-50g-a1b2c3.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"vm-8g-50g-a1b2c3","host":"h1","ssh_port":2242,"vnc_port":5977}`, string(raw))

	got, err := store.Get(ctx, "h1", "vm-8g-50g-a1b2c3")
	require.NoError(t, err)
	assert.Equal(t, res, got)

	require.NoError(t, store.Put(ctx, Reservation{Name: "vm-4g-20g-ffffff", Host: "h1", SSHPort: 2201, VNCPort: 5901}))

	all, err := store.List(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, []string{"vm-4g-20g-ffffff", "vm-8g-50g-a1b2c3"}, sortedNames(all))

	require.NoError(t, store.Delete(ctx, "h1", "vm-8g-50g-a1b2c3"))
	require.NoError(t, store.Delete(ctx, "h1", "vm-8g-50g-a1b2c3"))

	_, err = store.Get(ctx, "h1", "vm-8g-50g-a1b2c3")
	assert.ErrorIs(t, err, errdefs.ErrReservationNotFound)
}

func TestRemoteStoreListMissingDirectory(t *testing.T) {
	store := NewRemoteStore(shellRunner{}, filepath.Join(t.TempDir(), "never-created"), discardLogger())

	all, err := store.List(context.Background(), "h1")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRemoteStoreListSkipsGarbage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vm-a.json"),
		[]byte(`{"name":"vm-a","host":"h1","ssh_port":2201,"vnc_port":5901}`+"\n"), 0o644))

	store := NewRemoteStore(shellRunner{}, dir, discardLogger())
	all, err := store.List(context.Background(), "h1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "vm-a", all[0].Name)
}

func TestRegistryOverRemoteStore(t *testing.T) {
	ctx := context.Background()
	store := NewRemoteStore(shellRunner{}, t.TempDir(), discardLogger())
	reg, err := NewRegistry(store, discardLogger(),
		WithRanges(Range{Min: 2201, Max: 2202}, Range{Min: 5901, Max: 5902}),
		WithMaxAttempts(50))
	require.NoError(t, err)

	a, err := reg.Allocate(ctx, "h1", "vm-a")
	require.NoError(t, err)
	b, err := reg.Allocate(ctx, "h1", "vm-b")
	require.NoError(t, err)
	assert.NotEqual(t, a.SSHPort, b.SSHPort)
	assert.NotEqual(t, a.VNCPort, b.VNCPort)

	_, err = reg.Allocate(ctx, "h1", "vm-c")
	assert.ErrorIs(t, err, errdefs.ErrPortAllocationExhausted)
}
