package feed

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/xerrors"
)

const (
	// SequenceType is the feed indexing scheme used by the stream publisher.
	SequenceType = "sequence"

	IndexHeader     = "Swarm-Feed-Index"
	IndexNextHeader = "Swarm-Feed-Index-Next"
)

// Swarm references are 32 bytes, or 64 when the content is encrypted.
const (
	referenceLength          = 32
	encryptedReferenceLength = 64
)

// Client talks to a Bee gateway.
type Client struct {
	Gateway string
	HTTP    *http.Client
}

func NewClient(gateway string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		Gateway: strings.TrimRight(gateway, "/"),
		HTTP:    hc,
	}
}

// FeedReader returns a Reader for the feed id using the given indexing type.
func (c *Client) FeedReader(id Identity, typ string) Reader {
	if typ == "" {
		typ = SequenceType
	}
	return &beeReader{client: c, id: id, typ: typ}
}

type beeReader struct {
	client *Client
	id     Identity
	typ    string
}

type referenceResponse struct {
	Reference string `json:"reference"`
}

func (r *beeReader) endpoint() string {
	q := url.Values{}
	q.Set("type", r.typ)
	return r.client.Gateway + "/feeds/" + r.id.OwnerHex() + "/" + r.id.TopicHex() + "?" + q.Encode()
}

func (r *beeReader) Latest(ctx context.Context) (*Update, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint(), nil)
	if err != nil {
		return nil, xerrors.Errorf("feed: build request: %w", err)
	}
	res, err := r.client.HTTP.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("feed: read %s: %w", r.id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, xerrors.Errorf("feed: read %s: %w", r.id, ErrNotFound)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &StatusError{StatusCode: res.StatusCode, Status: res.Status}
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, xerrors.Errorf("feed: read body: %w", err)
	}
	var body referenceResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, xerrors.Errorf("feed: decode %q: %w", data, ErrMalformedReference)
	}
	if err := validateReference(body.Reference); err != nil {
		return nil, err
	}

	u := &Update{Reference: strings.ToLower(body.Reference)}
	if u.Index, err = parseIndex(res.Header.Get(IndexHeader)); err != nil {
		return nil, err
	}
	if u.NextIndex, err = parseIndex(res.Header.Get(IndexNextHeader)); err != nil {
		return nil, err
	}
	return u, nil
}

func validateReference(ref string) error {
	raw, err := hexutil.Decode("0x" + ref)
	if err != nil {
		return xerrors.Errorf("feed: reference %q: %w", ref, ErrMalformedReference)
	}
	if len(raw) != referenceLength && len(raw) != encryptedReferenceLength {
		return xerrors.Errorf("feed: reference %q has %d bytes: %w", ref, len(raw), ErrMalformedReference)
	}
	return nil
}

// parseIndex decodes the big endian hex index headers. A missing header is index 0.
func parseIndex(v string) (uint64, error) {
	if v == "" {
		return 0, nil
	}
	raw, err := hexutil.Decode("0x" + v)
	if err != nil || len(raw) == 0 || len(raw) > 8 {
		return 0, xerrors.Errorf("feed: invalid index header %q", v)
	}
	var buf [8]byte
	copy(buf[8-len(raw):], raw)
	return binary.BigEndian.Uint64(buf[:]), nil
}
