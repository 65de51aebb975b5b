package mediator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/findy-network/findy-didcomm/agent/utils"
	"github.com/findy-network/findy-didcomm/cmds"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// PingCmd checks that the mediator answers and prints its version.
type PingCmd struct {
	BaseAddr string
}

type PingResult struct {
	Version string `json:"version"`
}

func (r PingResult) JSON() ([]byte, error) {
	return cmds.JSONResult{V: r}.JSON()
}

func (c PingCmd) Validate() error {
	if c.BaseAddr == "" {
		return errors.New("server url cannot be empty")
	}
	return nil
}

func (c PingCmd) Exec(w io.Writer) (r cmds.Result, err error) {
	defer err2.Handle(&err, "ping %s", c.BaseAddr)

	ctx, cancel := context.WithTimeout(context.Background(), utils.Settings.Timeout())
	defer cancel()

	url := strings.TrimSuffix(c.BaseAddr, "/") + "/version"
	req := try.To1(http.NewRequestWithContext(ctx, http.MethodGet, url, nil))
	resp := try.To1(http.DefaultClient.Do(req))
	defer resp.Body.Close()

	data := try.To1(io.ReadAll(io.LimitReader(resp.Body, 1024)))
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, data)
	}
	res := PingResult{Version: string(data)}
	cmds.Fprintln(w, "ping ok.", "\nversion info:", res.Version)
	return res, nil
}
