package api

// CreateVMRequest is the body of POST /create.
type CreateVMRequest struct {
	RAM     string `json:"ram"`
	Storage string `json:"storage"`
	Host    string `json:"host"`
}

// CreateVMResponse describes a freshly started VM.
type CreateVMResponse struct {
	Name    string `json:"name"`
	Host    string `json:"host"`
	Domain  string `json:"domain"`
	SSHPort int    `json:"ssh_port"`
	VNCPort int    `json:"vnc_port"`
	Message string `json:"message"`
}

// VMInfo is one entry of GET /list.
type VMInfo struct {
	Name    string `json:"name"`
	Host    string `json:"host"`
	Domain  string `json:"domain"`
	SSHPort int    `json:"ssh_port"`
	VNCPort int    `json:"vnc_port"`
}

// KillVMRequest is the body of POST /kill.
type KillVMRequest struct {
	Name string `json:"name"`
}

type KillVMResponse struct {
	Name        string   `json:"name"`
	Message     string   `json:"message"`
	FailedSteps []string `json:"failed_steps,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// HostStatus reports whether a fleet host answered a probe.
type HostStatus struct {
	Host      string `json:"host"`
	Address   string `json:"address"`
	Domain    string `json:"domain"`
	Reachable bool   `json:"reachable"`
	Domains   int    `json:"domains"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

const (
	MessageCreated    = "VM ready, connect and code"
	MessageTerminated = "VM terminated"
)
