package passport

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/projectai397/sakshi-platform-sub002/src/catalog"
	"github.com/projectai397/sakshi-platform-sub002/src/rewards"
)

type EventKind string

const (
	EventCreated  EventKind = "created"
	EventRepair   EventKind = "repair"
	EventTransfer EventKind = "ownership_transfer"
	EventResale   EventKind = "resale"
)

var (
	ErrNotFound      = errors.New("passport not found")
	ErrNotOwner      = errors.New("only the owner can do this")
	ErrAlreadyMinted = errors.New("passport already minted")
	ErrConflict      = errors.New("passport changed concurrently")
	ErrMintDisabled  = errors.New("minting is not configured")
	ErrMintPending   = errors.New("passport mint in progress")
)

type Event struct {
	Seq       uint32    `json:"seq"`
	Kind      EventKind `json:"kind"`
	ActorID   string    `json:"actorId"`
	Notes     string    `json:"notes,omitempty"`
	CostCents int64     `json:"costCents"`
	PrevHash  string    `json:"prevHash"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"createdAt"`
}

// Passport is the digital product passport of one item
type Passport struct {
	ID          string    `json:"id"`
	ItemID      string    `json:"itemId"`
	OwnerID     string    `json:"ownerId"`
	OwnerWallet string    `json:"ownerWallet,omitempty"`
	TokenID     string    `json:"tokenId,omitempty"`
	TokenURI    string    `json:"tokenUri,omitempty"`
	MintTx      string    `json:"mintTx,omitempty"`
	HeadHash    string    `json:"headHash"`
	CreatedAt   time.Time `json:"createdAt"`
	Events      []Event   `json:"events"`
}

func (p Passport) head() common.Hash {
	return common.HexToHash(p.HeadHash)
}

type Store interface {
	Create(ctx context.Context, p Passport) error
	Get(ctx context.Context, id string) (Passport, error)
	// Append adds the event if the head is still prevHead and moves the
	// head (and the owner if newOwner is set), ErrConflict otherwise
	Append(ctx context.Context, id string, prevHead string, e Event, newOwner string) error
	// ClaimMint records the uri and the signed mint tx, ErrMintPending if
	// another mint tx is recorded and ErrAlreadyMinted if there is a token
	ClaimMint(ctx context.Context, id, uri, tx string) error
	// ReleaseMint forgets the mint tx if the passport has no token yet
	ReleaseMint(ctx context.Context, id, tx string) error
	// SetMinted records the token minted by tx
	SetMinted(ctx context.Context, id string, tokenID *big.Int, tx string) error
}

type ItemGetter interface {
	Get(ctx context.Context, id string) (catalog.Item, error)
}

type WalletLookup interface {
	Wallet(ctx context.Context, userID string) (rewards.WalletLink, error)
}

// Actor is the authenticated caller of an operation
type Actor struct {
	ID    string
	Admin bool
}

type Service struct {
	Store   Store
	Items   ItemGetter
	Wallets WalletLookup
	Pinner  Pinner // nil disables minting
	Minter  Minter
	Now     func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Create issues the passport of an item with the genesis event
func (s *Service) Create(ctx context.Context, itemID, ownerID string) (Passport, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Passport{}, errors.New("missing owner")
	}
	it, err := s.Items.Get(ctx, catalog.WashID(itemID))
	if err != nil {
		return Passport{}, err
	}
	genesis, err := seal(Event{Kind: EventCreated, ActorID: ownerID, Notes: it.Name, CreatedAt: s.now()}, 0, common.Hash{})
	if err != nil {
		return Passport{}, err
	}
	p := Passport{
		ID:        uuid.NewString(),
		ItemID:    it.ID,
		OwnerID:   ownerID,
		HeadHash:  genesis.Hash,
		CreatedAt: genesis.CreatedAt,
		Events:    []Event{genesis},
	}
	if err := s.Store.Create(ctx, p); err != nil {
		return Passport{}, err
	}
	zap.L().Info("passport created", zap.String("id", p.ID), zap.String("item", it.ID))
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (Passport, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Passport{}, ErrNotFound
	}
	p, err := s.Store.Get(ctx, id)
	if err != nil {
		return Passport{}, err
	}
	if s.Wallets != nil {
		if w, err := s.Wallets.Wallet(ctx, p.OwnerID); err == nil {
			p.OwnerWallet = w.WalletAddr
		}
	}
	return p, nil
}

func (s *Service) Verify(ctx context.Context, id string) (VerifyResult, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return VerifyResult{}, err
	}
	return VerifyChain(p), nil
}

func (s *Service) appendEvent(ctx context.Context, p Passport, e Event, newOwner string) (Passport, error) {
	e.CreatedAt = s.now()
	sealed, err := seal(e, uint32(len(p.Events)), p.head())
	if err != nil {
		return Passport{}, err
	}
	if err := s.Store.Append(ctx, p.ID, p.HeadHash, sealed, newOwner); err != nil {
		return Passport{}, err
	}
	p.Events = append(p.Events, sealed)
	p.HeadHash = sealed.Hash
	if newOwner != "" {
		p.OwnerID = newOwner
		p.OwnerWallet = ""
	}
	return p, nil
}

// RecordRepair appends a repair done on the item. The owner and admins
// may record repairs.
func (s *Service) RecordRepair(ctx context.Context, id string, actor Actor, notes string, costCents int64) (Passport, error) {
	if costCents < 0 {
		return Passport{}, errors.New("negative repair cost")
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return Passport{}, err
	}
	if p.OwnerID != actor.ID && !actor.Admin {
		return Passport{}, ErrNotOwner
	}
	return s.appendEvent(ctx, p, Event{Kind: EventRepair, ActorID: actor.ID, Notes: notes, CostCents: costCents}, "")
}

// Transfer hands the passport to a new owner. A positive price records the
// transfer as a resale.
func (s *Service) Transfer(ctx context.Context, id string, actor Actor, newOwner string, priceCents int64) (Passport, error) {
	newOwner = strings.TrimSpace(newOwner)
	if newOwner == "" {
		return Passport{}, errors.New("missing new owner")
	}
	if priceCents < 0 {
		return Passport{}, errors.New("negative price")
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return Passport{}, err
	}
	if p.OwnerID != actor.ID {
		return Passport{}, ErrNotOwner
	}
	if newOwner == p.OwnerID {
		return Passport{}, errors.New("already the owner")
	}
	kind := EventTransfer
	if priceCents > 0 {
		kind = EventResale
	}
	e := Event{Kind: kind, ActorID: actor.ID, Notes: "to " + newOwner, CostCents: priceCents}
	return s.appendEvent(ctx, p, e, newOwner)
}

// Mint pins the passport metadata and mints the NFT to the owner's wallet.
// The signed tx is recorded before it is broadcast, a passport with a
// recorded tx resumes waiting on it instead of minting again.
func (s *Service) Mint(ctx context.Context, id string) (Passport, error) {
	if s.Pinner == nil || s.Minter == nil {
		return Passport{}, ErrMintDisabled
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return Passport{}, err
	}
	if p.TokenID != "" {
		return Passport{}, ErrAlreadyMinted
	}
	if p.MintTx != "" {
		m, err := s.finishMint(ctx, p)
		if !errors.Is(err, ErrMintLost) {
			return m, err
		}
		zap.L().Warn("mint tx lost, minting again", zap.String("id", p.ID), zap.String("tx", p.MintTx))
		p.MintTx, p.TokenURI = "", ""
	}
	if s.Wallets == nil || p.OwnerWallet == "" {
		return Passport{}, errors.Wrap(rewards.ErrNoWallet, "owner "+p.OwnerID)
	}
	it, err := s.Items.Get(ctx, p.ItemID)
	if err != nil {
		return Passport{}, err
	}
	uri, err := s.Pinner.Pin(ctx, "passport-"+p.ID, NewMetadata(p, it))
	if err != nil {
		return Passport{}, err
	}
	tx, err := s.Minter.Prepare(ctx, common.HexToAddress(p.OwnerWallet), uri)
	if err != nil {
		return Passport{}, err
	}
	p.MintTx, p.TokenURI = tx.Hash().Hex(), uri
	if err := s.Store.ClaimMint(ctx, p.ID, uri, p.MintTx); err != nil {
		return Passport{}, err
	}
	if err := s.Minter.Send(ctx, tx); err != nil {
		// the claim stays, a retry finds out whether the tx reached the chain
		return Passport{}, err
	}
	return s.finishMint(ctx, p)
}

func (s *Service) finishMint(ctx context.Context, p Passport) (Passport, error) {
	tokenID, err := s.Minter.Wait(ctx, p.MintTx)
	if errors.Is(err, ErrMintLost) || errors.Is(err, ErrMintReverted) {
		if cerr := s.Store.ReleaseMint(ctx, p.ID, p.MintTx); cerr != nil {
			return Passport{}, cerr
		}
		return Passport{}, err
	}
	if err != nil {
		return Passport{}, err
	}
	if err := s.Store.SetMinted(ctx, p.ID, tokenID, p.MintTx); err != nil {
		return Passport{}, err
	}
	zap.L().Info("passport minted", zap.String("id", p.ID), zap.String("tokenId", tokenID.String()), zap.String("tx", p.MintTx))
	p.TokenID = tokenID.String()
	return p, nil
}
