package mediator

import (
	"io"
	"os"

	"github.com/findy-network/findy-didcomm/agent/agency"
	"github.com/findy-network/findy-didcomm/std/decorator"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"gopkg.in/yaml.v3"
)

// ServiceSeed is a DIDComm service of a seeded connection.
type ServiceSeed struct {
	Endpoint      string   `yaml:"endpoint"`
	RecipientKeys []string `yaml:"recipient-keys"`
	RoutingKeys   []string `yaml:"routing-keys"`
}

// ConnectionSeed is a connection given in the config file. The connection
// protocols aren't part of the mediator, so its connections are configured.
type ConnectionSeed struct {
	ID        string        `yaml:"id"`
	Label     string        `yaml:"label"`
	TheirKeys []string      `yaml:"their-keys"`
	Services  []ServiceSeed `yaml:"services"`

	// MediatedKeys are the recipient keys whose forward messages are queued
	// to this connection.
	MediatedKeys []string `yaml:"mediated-keys"`
}

type seedFile struct {
	Connections []ConnectionSeed `yaml:"connections"`
}

// ReadConnections reads the connections: list of the YAML config.
func ReadConnections(r io.Reader) (seeds []ConnectionSeed, err error) {
	defer err2.Handle(&err, "read connections")

	var f seedFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return nil, err
	}
	return f.Connections, nil
}

// ReadConnectionsFile is ReadConnections for a file. An empty name gives no
// connections.
func ReadConnectionsFile(name string) (seeds []ConnectionSeed, err error) {
	defer err2.Handle(&err)

	if name == "" {
		return nil, nil
	}
	f := try.To1(os.Open(name))
	defer f.Close()
	return ReadConnections(f)
}

// SeedResolver adds the connections to the resolver. ourKey is the
// mediator's own verkey in every connection.
func SeedResolver(r *agency.MemResolver, ourKey string, seeds []ConnectionSeed) {
	for _, s := range seeds {
		c := &agency.Connection{
			ID:         s.ID,
			TheirLabel: s.Label,
			OurKey:     ourKey,
			TheirKeys:  s.TheirKeys,
		}
		for _, svc := range s.Services {
			c.Services = append(c.Services, decorator.Service{
				RecipientKeys:   svc.RecipientKeys,
				RoutingKeys:     svc.RoutingKeys,
				ServiceEndpoint: svc.Endpoint,
			})
		}
		r.Add(c)
		for _, k := range s.MediatedKeys {
			r.AddRoutingKey(s.ID, k)
		}
	}
}
