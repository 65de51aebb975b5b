package utils

import (
	"time"

	"github.com/golang/glog"
)

const (
	HTTPReqTimeout = 1 * time.Minute

	DefaultMaxBatchSize    = 10
	DefaultInflightTimeout = 30 * time.Second
	DefaultRevertInterval  = 1 * time.Minute
)

var Settings = &Hub{}

type Hub struct {
	serviceName   string        // name of the service, used in the inbound URL path
	wsServiceName string        // web socket service name, a separate URL path
	hostAddr      string        // host address of the server seen from the internet
	versionInfo   string        // version number etc. in free format
	label         string        // our label used in logs and problem reports
	timeout       time.Duration // timeout for outbound http/ws requests

	maxBatchSize    int           // max messages per pickup delivery
	inflightTimeout time.Duration // how long a delivered batch waits for ack
	revertInterval  time.Duration // how often expired batches are reverted

	transportSchemes []string // outbound transport priority, e.g. ws, http
}

// SetTimeout sets the default timeout for HTTP and WS requests.
func (h *Hub) SetTimeout(to time.Duration) {
	h.timeout = to
}

// SetServiceName sets the service name of this mediator. Service name is used
// in the URLs and endpoint addresses.
func (h *Hub) SetServiceName(n string) {
	h.serviceName = n
}

// SetWsName sets web socket service name. It's in the different URL than HTTP.
func (h *Hub) SetWsName(n string) {
	h.wsServiceName = n
}

// SetVersionInfo sets current version info of this agent.
func (h *Hub) SetVersionInfo(info string) {
	h.versionInfo = info
}

// SetHostAddr sets current host name of this service. The host name is
// used in the URLs and endpoints.
func (h *Hub) SetHostAddr(ipName string) {
	h.hostAddr = ipName
}

func (h *Hub) SetLabel(l string) {
	h.label = l
}

func (h *Hub) SetMaxBatchSize(n int) {
	h.maxBatchSize = n
}

func (h *Hub) SetInflightTimeout(to time.Duration) {
	h.inflightTimeout = to
}

func (h *Hub) SetRevertInterval(i time.Duration) {
	h.revertInterval = i
}

// SetTransportSchemes sets the outbound transport priority. Schemes not
// listed are tried after the listed ones.
func (h *Hub) SetTransportSchemes(s []string) {
	h.transportSchemes = s
}

func (h *Hub) HostAddr() string {
	return h.hostAddr
}

func (h *Hub) ServiceName() string {
	if h.serviceName == "" && glog.V(3) {
		glog.Info("warning service name is empty")
	}
	return h.serviceName
}

func (h *Hub) WsServiceName() string {
	return h.wsServiceName
}

func (h *Hub) VersionInfo() string {
	return h.versionInfo
}

func (h *Hub) Label() string {
	return h.label
}

func (h *Hub) Timeout() time.Duration {
	if h.timeout == 0 {
		return HTTPReqTimeout
	}
	return h.timeout
}

func (h *Hub) MaxBatchSize() int {
	if h.maxBatchSize <= 0 {
		return DefaultMaxBatchSize
	}
	return h.maxBatchSize
}

func (h *Hub) InflightTimeout() time.Duration {
	if h.inflightTimeout == 0 {
		return DefaultInflightTimeout
	}
	return h.inflightTimeout
}

func (h *Hub) RevertInterval() time.Duration {
	if h.revertInterval == 0 {
		return DefaultRevertInterval
	}
	return h.revertInterval
}

func (h *Hub) TransportSchemes() []string {
	return h.transportSchemes
}
