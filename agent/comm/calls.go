package comm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/findy-network/findy-didcomm/agent/packager"
	"github.com/findy-network/findy-didcomm/agent/utils"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// errorMessageMaxLength is the maximum length of the response body we will
// include into the generated error message
const errorMessageMaxLength = 80

// SendAndWaitReq is proxy function to route actual call to http or pseudo
// http in tests.
var SendAndWaitReq = sendAndWaitHTTPRequest

var c = &http.Client{}

// HTTPSender posts the envelopes to HTTP endpoints. A non-empty response
// body is a return routed message, and it's fed to the dispatcher as a new
// inbound message.
type HTTPSender struct {
	d *Dispatcher
}

func NewHTTPSender(d *Dispatcher) *HTTPSender {
	return &HTTPSender{d: d}
}

func (s *HTTPSender) Send(ctx context.Context, endpoint string, data []byte) (err error) {
	defer err2.Handle(&err, "http send")

	glog.V(3).Infoln("===== outgoing http =====", endpoint)
	resp := try.To1(SendAndWaitReq(ctx, endpoint, bytes.NewReader(data)))
	if len(bytes.TrimSpace(resp)) == 0 || s.d == nil {
		return nil
	}

	// the response is handled after this send returns, the sender may still
	// hold the thread lock of the reply
	go func() {
		inCtx := context.WithoutCancel(ctx)
		if err := s.d.HandleInbound(inCtx, resp, nil); err != nil {
			glog.Warningf("handling response from %s: %v", endpoint, err)
		}
	}()
	return nil
}

func sendAndWaitHTTPRequest(ctx context.Context, urlStr string, msg io.Reader) (data []byte, err error) {
	defer err2.Handle(&err, "call http")

	URL := try.To1(url.Parse(urlStr))

	ctx, cancel := context.WithTimeout(ctx, utils.Settings.Timeout())
	defer cancel()

	request := try.To1(http.NewRequestWithContext(ctx, http.MethodPost, URL.String(), msg))
	request.Close = true // deferred response.Body.Close isn't always enough
	request.Header.Set("Content-Type", packager.MediaType)

	response := try.To1(c.Do(request))

	defer func() {
		closeErr := response.Body.Close()
		if closeErr != nil {
			glog.Warningln("body.Close: ", closeErr)
		}
	}()

	data = try.To1(io.ReadAll(response.Body))

	return checkHTTPStatus(response, data)
}

// checkHTTPStatus checks the status code and gets the server message
func checkHTTPStatus(response *http.Response, data []byte) ([]byte, error) {
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		glog.Warning("http code:", response.Status)
		contentType := response.Header.Get("Content-type")
		// from our server: text/plain; charset=utf-8
		if strings.HasPrefix(contentType, "text/plain") {
			l := len(data)
			return nil, fmt.Errorf("%s: %s",
				response.Status, data[0:min(errorMessageMaxLength, l)])
		}
		return nil, fmt.Errorf("%v", response.Status)
	}
	return data, nil
}
