package svc

import (
	"context"
	"crypto/ecdsa"
	"database/sql"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/projectai397/sakshi-platform-sub002/env"
	"github.com/projectai397/sakshi-platform-sub002/src/api"
	"github.com/projectai397/sakshi-platform-sub002/src/catalog"
	"github.com/projectai397/sakshi-platform-sub002/src/contracts"
	"github.com/projectai397/sakshi-platform-sub002/src/orders"
	"github.com/projectai397/sakshi-platform-sub002/src/passport"
	"github.com/projectai397/sakshi-platform-sub002/src/pricing"
	"github.com/projectai397/sakshi-platform-sub002/src/recommend"
	"github.com/projectai397/sakshi-platform-sub002/src/rewards"
	"github.com/projectai397/sakshi-platform-sub002/src/seva"
	"github.com/projectai397/sakshi-platform-sub002/src/store"
	"github.com/projectai397/sakshi-platform-sub002/src/utils"
)

const shutdownWait = 10 * time.Second

var requiredEnvs = []string{
	env.DATABASE_DSN,
	env.CONFIG_PATH,
	env.CHAIN_ID,
}

// LoadEnv reads the environment and sets up the global logger
func LoadEnv(envFile string) (*viper.Viper, error) {
	v, err := utils.LoadEnv(requiredEnvs, envFile)
	if err != nil {
		return nil, err
	}
	v.SetDefault(env.API_PORT, 8000)
	v.SetDefault(env.LOG_LEVEL, "info")
	v.SetDefault(env.AI_CACHE_TTL_MIN, 24*60)
	v.SetDefault(env.RPC_URL_PATH, "config/rpc.json")
	if _, err := utils.InitLogger(v.GetString(env.LOG_LEVEL), v.GetBool(env.LOG_DEVELOPMENT)); err != nil {
		return nil, errors.Wrap(err, "init logger")
	}
	return v, nil
}

// Platform holds the wired services of one process
type Platform struct {
	V        *viper.Viper
	Settings utils.Settings
	Db       *sql.DB
	Catalog  *catalog.Catalog
	Rewards  *rewards.Service
	App      *api.App

	rewardsOn bool
	client    *ethclient.Client
	cache     *badger.DB
}

// Build connects to the database (and the chain if rewards are enabled)
// and wires all services
func Build(ctx context.Context, v *viper.Viper, version string) (*Platform, error) {
	chainId := v.GetInt(env.CHAIN_ID)
	zap.L().Info("loading settings", zap.String("file", v.GetString(env.CONFIG_PATH)), zap.Int("chainId", chainId))
	settings, err := utils.LoadSettings(v.GetString(env.CONFIG_PATH), chainId)
	if err != nil {
		return nil, err
	}
	dsn := v.GetString(env.DATABASE_DSN)
	if v.GetBool(env.AUTO_MIGRATE) {
		if err := store.Migrate(dsn); err != nil {
			return nil, err
		}
	}
	db, err := store.ConnectDB(ctx, dsn)
	if err != nil {
		return nil, err
	}
	p := &Platform{V: v, Settings: settings, Db: db}
	if err := p.wire(ctx, version); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Platform) wire(ctx context.Context, version string) error {
	v, s := p.V, p.Settings
	engine := pricing.NewEngine(pricing.Config{
		CommunityBps:     s.Pricing.CommunityBps,
		SupporterBps:     s.Pricing.SupporterBps,
		RoundingCents:    s.Pricing.RoundingCents,
		SevaValueCents:   s.Pricing.SevaValueCents,
		MaxSevaShareBps:  s.Pricing.MaxSevaShareBps,
		SevaEarnPerCents: s.Pricing.SevaEarnPerCents,
	})
	p.Catalog = &catalog.Catalog{Store: &catalog.PgStore{Db: p.Db}}
	sevaSvc := seva.NewService(&seva.PgStore{Db: p.Db}, s)

	ai, err := p.advisor(ctx)
	if err != nil {
		return err
	}
	rec := &recommend.Service{
		Items:    p.Catalog,
		Profiles: &recommend.PgProfileStore{Db: p.Db},
		Pricing:  engine,
		AI:       ai,
		AIWeight: s.AiWeight,
	}

	pass := &passport.Service{Store: &passport.PgStore{Db: p.Db}, Items: p.Catalog}
	p.rewardsOn = v.GetBool(env.REWARDS_ENABLED)
	if p.rewardsOn {
		if err := p.wireChain(ctx, pass); err != nil {
			return err
		}
	} else {
		zap.L().Info("rewards disabled, no payouts and no minting")
		p.Rewards = rewards.NewService(&rewards.PgStore{Db: p.Db}, nil, nil, nil, s)
	}
	pass.Wallets = p.Rewards

	auth, err := verifier(v)
	if err != nil {
		return err
	}
	p.App = &api.App{
		Catalog:   p.Catalog,
		Pricing:   engine,
		Recommend: rec,
		Seva:      sevaSvc,
		Orders: &orders.Service{
			Store:   &orders.PgStore{Db: p.Db},
			Pricing: engine,
			Items:   p.Catalog,
			Seva:    sevaSvc,
		},
		Rewards:   p.Rewards,
		Passports: pass,
		Auth:      auth,
		Version:   version,
	}
	return nil
}

// advisor returns nil if no model is configured, which leaves the
// recommender on rules only
func (p *Platform) advisor(ctx context.Context) (recommend.Advisor, error) {
	key := p.V.GetString(env.GENAI_API_KEY)
	if key == "" {
		zap.L().Info("no GenAI key, recommendations use rules only")
		return nil, nil
	}
	inner, err := recommend.NewGenAIAdvisor(ctx, key, p.V.GetString(env.GENAI_MODEL))
	if err != nil {
		return nil, err
	}
	p.cache, err = recommend.OpenCache(p.V.GetString(env.AI_CACHE_PATH))
	if err != nil {
		return nil, err
	}
	ttl := time.Duration(p.V.GetInt(env.AI_CACHE_TTL_MIN)) * time.Minute
	zap.L().Info("ai advisor enabled", zap.String("advisor", inner.Name()), zap.Duration("cacheTtl", ttl))
	return recommend.NewCachedAdvisor(inner, p.cache, ttl), nil
}

func (p *Platform) payoutKey() (*ecdsa.PrivateKey, error) {
	hexKey := p.V.GetString(env.PAYOUT_KEY)
	if hexKey == "" && p.V.GetString(env.PAYOUT_KEY_FILE) != "" {
		var err error
		hexKey, err = utils.LoadKeyFromFile(p.V.GetString(env.PAYOUT_KEY_FILE), p.V.GetString(env.KEY_FILE_SECRET))
		if err != nil {
			return nil, err
		}
	}
	if hexKey == "" {
		return nil, nil
	}
	return rewards.ParsePayoutKey(hexKey)
}

func (p *Platform) wireChain(ctx context.Context, pass *passport.Service) error {
	v, s := p.V, p.Settings
	rpcs, err := utils.LoadRPCConfig(v.GetString(env.RPC_URL_PATH), s.ChainId)
	if err != nil {
		return err
	}
	zap.L().Info("dialing rpc", zap.Int("urls", len(rpcs)))
	p.client, err = rewards.DialRPC(ctx, rpcs)
	if err != nil {
		return err
	}
	if !common.IsHexAddress(s.SakTokenAddr) {
		return errors.Errorf("invalid sak token address %q", s.SakTokenAddr)
	}
	token, err := contracts.NewSakToken(common.HexToAddress(s.SakTokenAddr), p.client)
	if err != nil {
		return err
	}
	key, err := p.payoutKey()
	if err != nil {
		return err
	}
	var exec rewards.PayExec
	switch {
	case v.GetBool(env.PAYOUT_DRY_RUN):
		dry := &rewards.DryRunPayExec{}
		if key != nil {
			dry.Payer = crypto.PubkeyToAddress(key.PublicKey)
		}
		exec = dry
	case key != nil:
		exec = rewards.NewChainPayExec(key, int64(s.ChainId), token)
	default:
		return errors.New("rewards enabled without payout key, set " + env.PAYOUT_KEY + " or " + env.PAYOUT_KEY_FILE)
	}
	p.Rewards = rewards.NewService(&rewards.PgStore{Db: p.Db}, exec, p.client, token, s)
	if err := p.settingsToDB(ctx, exec.PayerAddr()); err != nil {
		return err
	}

	if url := v.GetString(env.PINNING_URL); url != "" && key != nil && common.IsHexAddress(s.PassportNftAddr) {
		minter, err := passport.NewChainMinter(p.client, common.HexToAddress(s.PassportNftAddr), key, int64(s.ChainId))
		if err != nil {
			return err
		}
		pass.Pinner = passport.NewHTTPPinner(url, v.GetString(env.PINNING_TOKEN))
		pass.Minter = minter
		zap.L().Info("passport minting enabled", zap.String("nft", s.PassportNftAddr))
	}
	return nil
}

// settingsToDB stores the payout settings next to the batch state
func (p *Platform) settingsToDB(ctx context.Context, payer common.Address) error {
	return store.SetSettings(ctx, p.Db, map[string]string{
		env.SETTING_PAYOUT_ADDR:   strings.ToLower(payer.Hex()),
		env.SETTING_LOOKBACK_DAYS: strconv.Itoa(p.Settings.PaymentMaxLookBackDays),
	})
}

func verifier(v *viper.Viper) (*api.Verifier, error) {
	a := &api.Verifier{Audience: v.GetString(env.JWT_AUDIENCE)}
	if secret := v.GetString(env.JWT_SECRET); secret != "" {
		a.Secret = []byte(secret)
	}
	if url := v.GetString(env.JWKS_URL); url != "" {
		a.Keys = api.NewKeySet(url)
	}
	if a.Secret == nil && a.Keys == nil {
		return nil, errors.New("no token verification configured, set " + env.JWT_SECRET + " or " + env.JWKS_URL)
	}
	return a, nil
}

func (p *Platform) Close() {
	if p.cache != nil {
		if err := p.cache.Close(); err != nil {
			zap.L().Warn("closing ai cache", zap.Error(err))
		}
	}
	if p.client != nil {
		p.client.Close()
	}
	if p.Db != nil {
		p.Db.Close()
	}
}

// Serve runs the HTTP API and, with rewards enabled, the payout
// scheduler until ctx is cancelled
func (p *Platform) Serve(ctx context.Context) error {
	router := chi.NewRouter()
	api.RegisterGlobalMiddleware(router)
	api.RegisterRoutes(router, p.App)
	addr := net.JoinHostPort(p.V.GetString(env.API_BIND_ADDR), p.V.GetString(env.API_PORT))
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.L().Info("listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownWait)
		defer cancel()
		zap.L().Info("shutting down http server")
		return server.Shutdown(sctx)
	})
	if p.rewardsOn {
		g.Go(func() error {
			return rewards.NewScheduler(p.Rewards).Run(ctx)
		})
	}
	return g.Wait()
}

// PayoutOnce runs one batch with confirmation, used by the payout command
func (p *Platform) PayoutOnce(ctx context.Context) (rewards.PayoutReport, rewards.ConfirmReport, error) {
	if !p.rewardsOn {
		return rewards.PayoutReport{}, rewards.ConfirmReport{}, rewards.ErrDisabled
	}
	if _, err := p.Rewards.SyncTransfers(ctx); err != nil {
		zap.L().Warn("sync transfers", zap.Error(err))
	}
	rep, err := p.Rewards.ProcessPayouts(ctx)
	if err != nil {
		return rep, rewards.ConfirmReport{}, err
	}
	conf, err := p.Rewards.ConfirmPayments(ctx)
	return rep, conf, err
}
