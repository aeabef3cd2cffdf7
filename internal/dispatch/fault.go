package dispatch

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"

	"github.com/mco-piccolo/timpani/internal/errs"
)

// FaultKind enumerates the kinds of fault Timpani can report upstream.
// Only DeadlineMiss is produced by this core (§4.4); the type leaves room
// for the upstream fault-handling service's broader vocabulary.
type FaultKind string

const DeadlineMiss FaultKind = "DeadlineMiss"

// FaultSink is the upstream fault-handling service's contract (§1: out of
// scope beyond this contract). NotifyFault is best-effort: callers log
// failures and drop them, per §4.4/§7.
type FaultSink interface {
	NotifyFault(workloadID, nodeID, taskName string, kind FaultKind) error
}

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

type faultNotification struct {
	WorkloadID string `json:"workload_id"`
	NodeID     string `json:"node_id"`
	TaskName   string `json:"task_name"`
	Kind       string `json:"kind"`
}

// HTTPFaultSink posts fault notifications as JSON to the upstream
// FaultService, using fasthttp.Client for a low-allocation client on this
// best-effort, possibly-hot path.
type HTTPFaultSink struct {
	client *fasthttp.Client
	url    string
	timeout time.Duration
}

func NewHTTPFaultSink(host string, port int) *HTTPFaultSink {
	return &HTTPFaultSink{
		client:  &fasthttp.Client{},
		url:     fmt.Sprintf("http://%s:%d/fault", host, port),
		timeout: 2 * time.Second,
	}
}

func (s *HTTPFaultSink) NotifyFault(workloadID, nodeID, taskName string, kind FaultKind) error {
	body, err := jsonAPI.Marshal(faultNotification{
		WorkloadID: workloadID,
		NodeID:     nodeID,
		TaskName:   taskName,
		Kind:       string(kind),
	})
	if err != nil {
		return errs.Wrap(errs.Io, err, "marshal fault notification")
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := s.client.DoTimeout(req, resp, s.timeout); err != nil {
		return errs.Wrap(errs.Network, err, "POST fault notification to "+s.url)
	}
	if resp.StatusCode() >= 300 {
		return errs.New(errs.Network, fmt.Sprintf("fault service replied %d", resp.StatusCode()))
	}
	return nil
}
