package passport

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/projectai397/sakshi-platform-sub002/src/catalog"
)

type Pinner interface {
	// Pin stores the JSON document and returns its uri
	Pin(ctx context.Context, name string, doc any) (string, error)
}

type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// Metadata is the ERC-721 metadata document of a passport
type Metadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Attributes  []Attribute `json:"attributes"`
	Passport    struct {
		ID       string  `json:"id"`
		ItemID   string  `json:"itemId"`
		HeadHash string  `json:"headHash"`
		Events   []Event `json:"events"`
	} `json:"passport"`
}

func NewMetadata(p Passport, it catalog.Item) Metadata {
	var repairs int
	for _, e := range p.Events {
		if e.Kind == EventRepair {
			repairs++
		}
	}
	m := Metadata{
		Name:        it.Name + " passport",
		Description: it.Description,
		Attributes: []Attribute{
			{TraitType: "kind", Value: string(it.Kind)},
			{TraitType: "condition", Value: string(it.Condition)},
			{TraitType: "repairs", Value: strconv.Itoa(repairs)},
			{TraitType: "owners", Value: strconv.Itoa(countOwners(p))},
		},
	}
	m.Passport.ID = p.ID
	m.Passport.ItemID = p.ItemID
	m.Passport.HeadHash = p.HeadHash
	m.Passport.Events = p.Events
	return m
}

func countOwners(p Passport) int {
	n := 1
	for _, e := range p.Events {
		if e.Kind == EventTransfer || e.Kind == EventResale {
			n++
		}
	}
	return n
}

// HTTPPinner pins JSON through a pinning service with the
// pinJSONToIPFS request shape
type HTTPPinner struct {
	client *resty.Client
	url    string
}

func NewHTTPPinner(url, token string) *HTTPPinner {
	client := resty.New().
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetAuthToken(token)
	return &HTTPPinner{client: client, url: strings.TrimSuffix(url, "/")}
}

type pinRequest struct {
	Metadata struct {
		Name string `json:"name"`
	} `json:"pinataMetadata"`
	Content any `json:"pinataContent"`
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
	Cid      string `json:"cid"`
	Error    any    `json:"error"`
}

func (h *HTTPPinner) Pin(ctx context.Context, name string, doc any) (string, error) {
	var req pinRequest
	req.Metadata.Name = name
	req.Content = doc
	var res pinResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&res).
		SetError(&res).
		Post(h.url)
	if err != nil {
		return "", errors.Wrap(err, "pin metadata")
	}
	if resp.IsError() {
		return "", errors.Errorf("pinning service status %d: %v", resp.StatusCode(), res.Error)
	}
	cid := res.IpfsHash
	if cid == "" {
		cid = res.Cid
	}
	if cid == "" {
		return "", errors.New("pinning service returned no cid")
	}
	return "ipfs://" + cid, nil
}
