package roundtrip

import (
	"context"
	"errors"

	"github.com/ybbus/jsonrpc/v3"
)

type BundleSender interface {
	SendBundle(ctx context.Context, bundle Bundle) (string, error)
}

// AssembleBundle fixes the execution order: both swap legs first, the incentive payment last.
func AssembleBundle(leg1, leg2, incentive SignedTransaction) (Bundle, error) {
	bundle := Bundle{leg1, leg2, incentive}
	for _, tx := range bundle {
		if tx == "" {
			return Bundle{}, ErrEmptyBundleElement
		}
	}
	return bundle, nil
}

// JSONRPCRelay submits bundles to a block engine relay. The relay executes a bundle
// atomically; that guarantee is not re-checked here.
type JSONRPCRelay struct {
	url    string
	client jsonrpc.RPCClient
}

func NewJSONRPCRelay(url string) *JSONRPCRelay {
	return &JSONRPCRelay{
		url:    url,
		client: jsonrpc.NewClient(url),
	}
}

func (r *JSONRPCRelay) String() string {
	return r.url
}

// SendBundle returns the relay's bundle id.
func (r *JSONRPCRelay) SendBundle(ctx context.Context, bundle Bundle) (string, error) {
	// one parameter: the ordered list of encoded transactions
	res, err := r.client.Call(ctx, SendBundleMethod, [][]string{bundle.Encoded()})
	if err != nil {
		var httpErr *jsonrpc.HTTPError
		if errors.As(err, &httpErr) {
			return "", &VenueError{Op: SendBundleMethod, Status: httpErr.Code, Err: err}
		}
		return "", &VenueError{Op: SendBundleMethod, Err: err}
	}
	if res.Error != nil {
		return "", &VenueError{Op: SendBundleMethod, Body: res.Error.Message, Err: res.Error}
	}
	id, err := res.GetString()
	if err != nil {
		return "", &VenueError{Op: SendBundleMethod, Err: err}
	}
	return id, nil
}
