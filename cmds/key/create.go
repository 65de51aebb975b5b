package key

import (
	"io"

	"github.com/findy-network/findy-didcomm/agent/sec"
	"github.com/findy-network/findy-didcomm/cmds"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// CreateCmd creates an Ed25519 key pair. With the seed the key is
// deterministic.
type CreateCmd struct {
	Seed string
}

type Key struct {
	Verkey string `json:"verkey"`
	DIDKey string `json:"did"`
}

func (k Key) JSON() ([]byte, error) {
	return cmds.JSONResult{V: k}.JSON()
}

func (c *CreateCmd) Validate() error {
	if err := cmds.ValidateSeed(c.Seed); err != nil {
		return err
	}
	return nil
}

func (c *CreateCmd) Exec(w io.Writer) (r cmds.Result, err error) {
	defer err2.Handle(&err, "key create")

	ks := sec.NewMemKeyStore()
	var verkey string
	if c.Seed != "" {
		verkey = try.To1(ks.Import([]byte(c.Seed)))
	} else {
		verkey = try.To1(ks.Create())
	}
	k := Key{Verkey: verkey, DIDKey: try.To1(sec.DIDKey(verkey))}
	cmds.Fprintln(w, k.Verkey)
	cmds.Fprintln(w, k.DIDKey)

	return k, nil
}
