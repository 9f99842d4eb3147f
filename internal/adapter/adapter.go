package adapter

import (
	"github.com/terabiome/archdev/internal/api"
	"github.com/terabiome/archdev/internal/service"
)

func AdaptCreateVM(req api.CreateVMRequest) service.CreateVMParams {
	return service.CreateVMParams{
		RAM:     req.RAM,
		Storage: req.Storage,
		Host:    req.Host,
	}
}

func AdaptCreatedVMToAPI(vm *service.VM) api.CreateVMResponse {
	return api.CreateVMResponse{
		Name:    vm.Name,
		Host:    vm.Host,
		Domain:  vm.Domain,
		SSHPort: vm.SSHPort,
		VNCPort: vm.VNCPort,
		Message: api.MessageCreated,
	}
}

// AdaptVMsToAPI never returns nil so that an empty listing encodes as [].
func AdaptVMsToAPI(vms []service.VM) []api.VMInfo {
	result := make([]api.VMInfo, len(vms))
	for i, vm := range vms {
		result[i] = api.VMInfo{
			Name:    vm.Name,
			Host:    vm.Host,
			Domain:  vm.Domain,
			SSHPort: vm.SSHPort,
			VNCPort: vm.VNCPort,
		}
	}
	return result
}

func AdaptKillResultToAPI(result *service.KillResult) api.KillVMResponse {
	return api.KillVMResponse{
		Name:        result.Name,
		Message:     api.MessageTerminated,
		FailedSteps: result.FailedSteps(),
	}
}

func AdaptHostStatusesToAPI(statuses []service.HostStatus) []api.HostStatus {
	result := make([]api.HostStatus, len(statuses))
	for i, s := range statuses {
		result[i] = api.HostStatus{
			Host:      s.Host.ID,
			Address:   s.Host.Address,
			Domain:    s.Host.Domain,
			Reachable: s.Err == nil,
			Domains:   s.Domains,
			LatencyMS: s.Latency.Milliseconds(),
		}
		if s.Err != nil {
			result[i].Error = s.Err.Error()
		}
	}
	return result
}
