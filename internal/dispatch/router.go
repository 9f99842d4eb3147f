package dispatch

import (
	"context"

	"github.com/terabiome/archdev/internal/fleet"
)

// Router sends each command to the local or remote dispatcher depending on
// where the target host lives. It is the only place host locality is decided.
type Router struct {
	fleet     *fleet.Directory
	localHost string
	local     Dispatcher
	remote    Dispatcher
}

// NewRouter treats localHost as the machine running the service; every
// other fleet member is reached remotely.
func NewRouter(dir *fleet.Directory, localHost string, local, remote Dispatcher) *Router {
	return &Router{
		fleet:     dir,
		localHost: localHost,
		local:     local,
		remote:    remote,
	}
}

func (r *Router) Execute(ctx context.Context, hostID, command string) (string, error) {
	if _, err := r.fleet.Resolve(hostID); err != nil {
		return "", err
	}
	if r.IsLocal(hostID) {
		return r.local.Execute(ctx, hostID, command)
	}
	return r.remote.Execute(ctx, hostID, command)
}

func (r *Router) IsLocal(hostID string) bool {
	return r.localHost != "" && hostID == r.localHost
}
