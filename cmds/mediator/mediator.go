/*
Package mediator is the command which runs the DIDComm mediator service. The
command builds the runtime from its flags: the key enclave, the queue
storage, the agent context with the configured connections, the protocol
handlers and the transports, and then serves until it's stopped.
*/
package mediator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/findy-network/findy-didcomm/agent/agency"
	"github.com/findy-network/findy-didcomm/agent/comm"
	"github.com/findy-network/findy-didcomm/agent/mediator"
	"github.com/findy-network/findy-didcomm/agent/pickup"
	"github.com/findy-network/findy-didcomm/agent/pltype"
	"github.com/findy-network/findy-didcomm/agent/prot"
	"github.com/findy-network/findy-didcomm/agent/sec"
	"github.com/findy-network/findy-didcomm/agent/storage/cfg"
	"github.com/findy-network/findy-didcomm/agent/storage/wrapper"
	"github.com/findy-network/findy-didcomm/agent/txp"
	"github.com/findy-network/findy-didcomm/agent/utils"
	"github.com/findy-network/findy-didcomm/cmds"
	"github.com/findy-network/findy-didcomm/enclave"
	grpcserver "github.com/findy-network/findy-didcomm/grpc/server"
	"github.com/findy-network/findy-didcomm/server"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

const agentID = "mediator"

type Cmd struct {
	ServiceName   string
	WsServiceName string
	HostScheme    string
	HostAddr      string
	HostPort      uint
	ServerPort    uint

	EnclavePath string
	EnclaveKey  string
	Seed        string
	QueueDB     string
	Label       string

	Timeout          time.Duration
	InflightTimeout  time.Duration
	RevertInterval   time.Duration
	MaxBatch         int
	TransportSchemes []string

	RateLimit float64
	Burst     int

	// GRPCPort of the health service, zero is off.
	GRPCPort int

	// ConfigFile has the connections: list.
	ConfigFile  string
	VersionInfo string

	rt *runtime
}

// DefaultValues are the defaults of the CLI flags.
var DefaultValues = Cmd{
	ServiceName:     "a2a",
	WsServiceName:   "ws",
	HostScheme:      "http",
	HostAddr:        "localhost",
	HostPort:        8080,
	ServerPort:      8080,
	QueueDB:         "queue",
	Label:           "findy mediator",
	Timeout:         utils.HTTPReqTimeout,
	InflightTimeout: utils.DefaultInflightTimeout,
	RevertInterval:  utils.DefaultRevertInterval,
	MaxBatch:        utils.DefaultMaxBatchSize,
	GRPCPort:        0,
}

// runtime has the components built by Setup.
type runtime struct {
	key        string
	enclave    *enclave.Enclave
	storeCfg   wrapper.Config
	resolver   *agency.MemResolver
	agent      *agency.Context
	tenants    *agency.Tenants
	registry   *prot.Registry
	dispatcher *comm.Dispatcher
	wsSender   *txp.Sender
	queue      *mediator.Queue
	server     *server.Server
	health     *grpcserver.Server
}

func (c *Cmd) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}
	if c.WsServiceName == "" {
		return errors.New("websocket service name cannot be empty")
	}
	if c.ServiceName == c.WsServiceName {
		return errors.New("service names must differ")
	}
	if c.HostAddr == "" {
		return errors.New("host address cannot be empty")
	}
	if c.ServerPort == 0 {
		return errors.New("server port cannot be zero")
	}
	if c.QueueDB == "" {
		return errors.New("queue database name cannot be empty")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.InflightTimeout <= 0 {
		return errors.New("in-flight timeout must be positive")
	}
	if c.RevertInterval <= 0 {
		return errors.New("revert interval must be positive")
	}
	if c.MaxBatch <= 0 {
		return errors.New("max batch must be positive")
	}
	if err := cmds.ValidateSeed(c.Seed); err != nil {
		return err
	}
	for _, s := range c.TransportSchemes {
		switch s {
		case "http", "https", "ws", "wss":
		default:
			return fmt.Errorf("unknown transport scheme: %s", s)
		}
	}
	return nil
}

// Endpoint is the inbound endpoint the connections see.
func (c *Cmd) Endpoint() string {
	port := c.HostPort
	if port == 0 {
		port = c.ServerPort
	}
	return fmt.Sprintf("%s://%s:%d/%s", c.HostScheme, c.HostAddr, port, c.ServiceName)
}

func (c *Cmd) Exec(w io.Writer) (r cmds.Result, err error) {
	defer err2.Handle(&err)

	try.To(c.Setup())
	cmds.Fprintln(w, "mediator key:", c.rt.key)
	cmds.Fprintln(w, "endpoint:", c.Endpoint())
	try.To(c.Run())
	return nil, nil
}

func (c *Cmd) PreRun() {
	utils.Settings.SetVersionInfo(c.VersionInfo)
}

// Setup builds the runtime. Close releases it.
func (c *Cmd) Setup() (err error) {
	defer err2.Handle(&err, "mediator setup")

	c.printStartupArgs()
	c.setRuntimeSettings()

	rt := &runtime{}
	c.rt = rt
	defer err2.Handle(&err, func(err error) error {
		c.Close()
		return err
	})
	rt.enclave = try.To1(c.initSealedBox())
	rt.key = try.To1(c.mediatorKey(rt.enclave))

	rt.storeCfg = c.storageConfig()
	try.To(os.MkdirAll(rt.storeCfg.FilePath, 0700))
	store := try.To1(cfg.Open(rt.storeCfg))

	rt.resolver = agency.NewMemResolver()
	SeedResolver(rt.resolver, rt.key, try.To1(ReadConnectionsFile(c.ConfigFile)))
	rt.agent = agency.NewContext(agentID, c.Label, rt.enclave, rt.resolver, c.Endpoint())
	rt.tenants = agency.NewTenants(rt.agent)

	rt.registry = prot.NewRegistry()
	rt.dispatcher = comm.NewDispatcher(comm.Config{
		Contexts: rt.tenants,
		Handlers: rt.registry,
		Schemes:  c.TransportSchemes,
	})
	rt.wsSender = txp.NewSender(rt.dispatcher)

	rt.queue = mediator.NewQueue(mediator.Config{
		Store:           store,
		Live:            mediator.NewLiveSessions(rt.dispatcher.Sessions()),
		InflightTimeout: c.InflightTimeout,
		RevertInterval:  c.RevertInterval,
	})
	rt.dispatcher.SetQueuer(rt.queue)

	prot.RegisterTrustPing(rt.registry)
	rt.registry.Register(pltype.RoutingForward, &mediator.ForwardHandler{Queue: rt.queue})
	holder := pickup.NewHolder(rt.queue, rt.dispatcher)
	holder.MaxBatch = c.MaxBatch
	pickup.RegisterHolder(rt.registry, holder)

	rt.server = server.New(server.Config{
		Port:          c.ServerPort,
		ServiceName:   c.ServiceName,
		WsServiceName: c.WsServiceName,
		RateLimit:     c.RateLimit,
		Burst:         c.Burst,
	}, rt.dispatcher)

	if c.GRPCPort != 0 {
		rt.health = grpcserver.New()
	}
	glog.V(1).Infoln("mediator ready, protocols:", rt.registry.SupportedProtocols())
	return nil
}

// Run starts the queue job and the servers, and blocks until the HTTP
// server stops or the process is signaled.
func (c *Cmd) Run() (err error) {
	defer err2.Handle(&err, "mediator run")

	rt := c.rt
	if rt == nil {
		return errors.New("setup not done")
	}
	defer c.Close()

	try.To(rt.queue.Start())
	if rt.health != nil {
		try.To(rt.health.Start(c.GRPCPort))
		rt.health.SetServing(true)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		glog.V(1).Infoln("shutting down mediator")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.server.Shutdown(sctx); err != nil {
			glog.Warningln("http shutdown:", err)
		}
	}()

	try.To(rt.server.ListenAndServe())
	return nil
}

// Close releases the runtime. It's safe to call many times.
func (c *Cmd) Close() {
	rt := c.rt
	if rt == nil {
		return
	}
	c.rt = nil

	if rt.health != nil {
		rt.health.SetServing(false)
		rt.health.Stop()
	}
	if rt.queue != nil {
		rt.queue.Stop()
	}
	if rt.wsSender != nil {
		rt.wsSender.Close()
	}
	if rt.tenants != nil {
		rt.tenants.Close()
	}
	if rt.storeCfg.FileName != "" {
		if err := cfg.Close(rt.storeCfg); err != nil {
			glog.Warningln("close queue storage:", err)
		}
	}
	if rt.enclave != nil {
		if err := rt.enclave.Close(); err != nil {
			glog.Warningln("close enclave:", err)
		}
	}
}

// Dispatcher returns the dispatcher of the set up runtime.
func (c *Cmd) Dispatcher() *comm.Dispatcher {
	if c.rt == nil {
		return nil
	}
	return c.rt.dispatcher
}

// Key returns the mediator's verkey of the set up runtime.
func (c *Cmd) Key() string {
	if c.rt == nil {
		return ""
	}
	return c.rt.key
}

// Agent returns the mediator's agent context of the set up runtime.
func (c *Cmd) Agent() *agency.Context {
	if c.rt == nil {
		return nil
	}
	return c.rt.agent
}

// Queue returns the forward queue of the set up runtime.
func (c *Cmd) Queue() *mediator.Queue {
	if c.rt == nil {
		return nil
	}
	return c.rt.queue
}

func (c *Cmd) initSealedBox() (_ *enclave.Enclave, err error) {
	defer err2.Handle(&err)

	path := c.EnclavePath
	if path == "" {
		path = utils.DataPath("enclave.bolt")
	}
	try.To(os.MkdirAll(filepath.Dir(path), 0700))
	keyset := c.EnclaveKey
	if keyset == "" {
		keyset = filepath.Join(filepath.Dir(path), "enclave.keyset")
	}
	return enclave.InitSealedBox(path, keyset)
}

// mediatorKey returns the first key of the enclave and creates one if the
// enclave is empty.
func (c *Cmd) mediatorKey(e *enclave.Enclave) (verkey string, err error) {
	defer err2.Handle(&err, "mediator key")

	keys := try.To1(e.Verkeys())
	if len(keys) > 0 {
		if c.Seed != "" {
			glog.Warningln("enclave has keys, seed ignored")
		}
		return keys[0], nil
	}
	if c.Seed != "" {
		verkey = try.To1(e.Import([]byte(c.Seed)))
	} else {
		verkey = try.To1(e.Create())
	}
	didKey := try.To1(sec.DIDKey(verkey))
	glog.V(1).Infoln("mediator key created:", verkey, didKey)
	return verkey, nil
}

func (c *Cmd) storageConfig() wrapper.Config {
	dir, name := filepath.Split(c.QueueDB)
	if dir == "" {
		dir = filepath.Dir(utils.DataPath(name))
	}
	return wrapper.Config{FileName: name, FilePath: dir}
}

func (c *Cmd) setRuntimeSettings() {
	utils.Settings.SetServiceName(c.ServiceName)
	utils.Settings.SetWsName(c.WsServiceName)
	utils.Settings.SetHostAddr(c.HostAddr)
	utils.Settings.SetLabel(c.Label)
	utils.Settings.SetTimeout(c.Timeout)
	utils.Settings.SetMaxBatchSize(c.MaxBatch)
	utils.Settings.SetInflightTimeout(c.InflightTimeout)
	utils.Settings.SetRevertInterval(c.RevertInterval)
	if len(c.TransportSchemes) > 0 {
		utils.Settings.SetTransportSchemes(c.TransportSchemes)
	}
}

func (c *Cmd) printStartupArgs() {
	glog.V(1).Infoln(
		"Queue db:", c.QueueDB,
		"\nEnclave:", c.EnclavePath,
		"\nHost address:", c.HostAddr,
		"\nHost port:", c.HostPort,
		"\nServer port:", c.ServerPort,
		"\nIn-flight timeout:", c.InflightTimeout)
}
