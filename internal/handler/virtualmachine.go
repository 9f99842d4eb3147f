package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/terabiome/archdev/internal/adapter"
	"github.com/terabiome/archdev/internal/api"
	"github.com/terabiome/archdev/internal/service"
)

// VMController is the part of the VM service the HTTP layer drives.
type VMController interface {
	Create(ctx context.Context, params service.CreateVMParams) (*service.VM, error)
	List(ctx context.Context) ([]service.VM, error)
	Kill(ctx context.Context, name string) (*service.KillResult, error)
}

// VirtualMachine handles VM-related HTTP requests
type VirtualMachine struct {
	vms    VMController
	logger *slog.Logger
}

func NewVirtualMachine(vms VMController, logger *slog.Logger) *VirtualMachine {
	return &VirtualMachine{
		vms:    vms,
		logger: logger.With(slog.String("component", "handler")),
	}
}

// Create handles POST /create
func (h *VirtualMachine) Create(writer http.ResponseWriter, request *http.Request) {
	var createRequest api.CreateVMRequest
	if !decodeBody(writer, request, &createRequest) {
		return
	}

	vm, err := h.vms.Create(request.Context(), adapter.AdaptCreateVM(createRequest))
	if err != nil {
		writeError(writer, h.logger, "create", err)
		return
	}

	writeJSON(writer, http.StatusCreated, adapter.AdaptCreatedVMToAPI(vm))
}

// List handles GET /list
func (h *VirtualMachine) List(writer http.ResponseWriter, request *http.Request) {
	vms, err := h.vms.List(request.Context())
	if err != nil {
		writeError(writer, h.logger, "list", err)
		return
	}

	writeJSON(writer, http.StatusOK, adapter.AdaptVMsToAPI(vms))
}

// Kill handles POST /kill
func (h *VirtualMachine) Kill(writer http.ResponseWriter, request *http.Request) {
	var killRequest api.KillVMRequest
	if !decodeBody(writer, request, &killRequest) {
		return
	}

	result, err := h.vms.Kill(request.Context(), killRequest.Name)
	if err != nil {
		writeError(writer, h.logger, "kill", err)
		return
	}

	writeJSON(writer, http.StatusOK, adapter.AdaptKillResultToAPI(result))
}
