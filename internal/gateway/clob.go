package gateway

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-resty/resty/v2"
	orderbuilder "github.com/polymarket/go-order-utils/pkg/builder"
	ordermodel "github.com/polymarket/go-order-utils/pkg/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/crossarb/internal/domain"
	"github.com/betbot/crossarb/pkg/logger"
	"github.com/betbot/crossarb/pkg/ratelimit"
)

const zeroAddressHex = "0x0000000000000000000000000000000000000000"

// ClobConfig carries everything the live gateway needs to sign and
// authenticate.
type ClobConfig struct {
	BaseURL       string
	ChainID       int64
	PrivateKey    string // hex, with or without 0x
	FunderAddress string // empty: the signer address funds its own orders
	SignatureType int
	APIKey        string
	APISecret     string
	APIPassphrase string
}

// ClobGateway is the live order gateway. Orders go out as FOK so a leg
// either fills completely at or better than the cap price, or not at all.
type ClobGateway struct {
	http  *resty.Client
	log   *logrus.Entry
	rl    *ratelimit.Manager
	chain *big.Int

	privateKey    *ecdsa.PrivateKey
	signer        common.Address
	funder        common.Address
	signatureType int

	apiKey        string
	apiSecret     string
	apiPassphrase string

	saltGen func() int64
}

func NewClobGateway(cfg ClobConfig, rl *ratelimit.Manager) (*ClobGateway, error) {
	pkHex := strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x")
	if pkHex == "" {
		return nil, errors.New("gateway: private key is required")
	}
	pk, err := crypto.HexToECDSA(pkHex)
	if err != nil {
		return nil, errors.Wrap(err, "gateway: parse private key")
	}
	signer := crypto.PubkeyToAddress(pk.PublicKey)

	funder := signer
	if cfg.FunderAddress != "" {
		if !common.IsHexAddress(cfg.FunderAddress) {
			return nil, errors.Errorf("gateway: invalid funder address %q", cfg.FunderAddress)
		}
		funder = common.HexToAddress(cfg.FunderAddress)
	}

	if cfg.APIKey == "" || cfg.APISecret == "" || cfg.APIPassphrase == "" {
		return nil, errors.New("gateway: API credentials are required")
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://clob.polymarket.com"
	}
	httpc := resty.New().
		SetBaseURL(base).
		SetTimeout(15 * time.Second).
		SetRetryCount(0)

	return &ClobGateway{
		http:          httpc,
		log:           logger.Logger.WithField("component", "gateway"),
		rl:            rl,
		chain:         big.NewInt(cfg.ChainID),
		privateKey:    pk,
		signer:        signer,
		funder:        funder,
		signatureType: cfg.SignatureType,
		apiKey:        cfg.APIKey,
		apiSecret:     cfg.APISecret,
		apiPassphrase: cfg.APIPassphrase,
		saltGen:       func() int64 { return rand.Int63() },
	}, nil
}

// Signer returns the signing address, mainly for startup logging.
func (g *ClobGateway) Signer() string { return g.signer.Hex() }

type orderJSON struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

type postOrderPayload struct {
	Order     orderJSON `json:"order"`
	Owner     string    `json:"owner"`
	OrderType string    `json:"orderType"`
}

type postOrderResponse struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
}

func (g *ClobGateway) PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	if err := g.rl.Wait(ctx, "clob:order:post"); err != nil {
		return OrderAck{}, err
	}

	maker, taker, err := orderAmounts(req.Side, req.Price, req.Size)
	if err != nil {
		return OrderAck{}, err
	}

	contract := ordermodel.CTFExchange
	if req.NegRisk {
		contract = ordermodel.NegRiskCTFExchange
	}
	sideEnum := ordermodel.BUY
	if req.Side == domain.SideSell {
		sideEnum = ordermodel.SELL
	}

	od := &ordermodel.OrderData{
		Maker:         g.funder.Hex(),
		Taker:         zeroAddressHex,
		TokenId:       req.AssetID,
		MakerAmount:   maker.String(),
		TakerAmount:   taker.String(),
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        g.signer.Hex(),
		Expiration:    "0",
		Side:          sideEnum,
		SignatureType: ordermodel.SignatureType(g.signatureType),
	}

	builder := orderbuilder.NewExchangeOrderBuilderImpl(g.chain, g.saltGen)
	signed, err := builder.BuildSignedOrder(g.privateKey, od, contract)
	if err != nil {
		return OrderAck{}, errors.Wrap(err, "sign order")
	}

	payload := postOrderPayload{
		Owner:     g.apiKey,
		OrderType: "FOK",
		Order: orderJSON{
			Salt:          signed.Salt.Int64(),
			Maker:         signed.Maker.Hex(),
			Signer:        signed.Signer.Hex(),
			Taker:         signed.Taker.Hex(),
			TokenID:       signed.TokenId.String(),
			MakerAmount:   signed.MakerAmount.String(),
			TakerAmount:   signed.TakerAmount.String(),
			Expiration:    signed.Expiration.String(),
			Nonce:         signed.Nonce.String(),
			FeeRateBps:    signed.FeeRateBps.String(),
			Side:          string(req.Side),
			SignatureType: int(signed.SignatureType.Int64()),
			Signature:     "0x" + fmt.Sprintf("%x", signed.Signature),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return OrderAck{}, errors.Wrap(err, "marshal order payload")
	}

	var out postOrderResponse
	resp, err := g.signedRequest(ctx, http.MethodPost, "/order", body, &out)
	if err != nil {
		return OrderAck{}, errors.Wrapf(domain.ErrSubmissionFailed, "post order: %v", err)
	}
	if resp.IsError() {
		return OrderAck{}, errors.Wrapf(domain.ErrSubmissionFailed,
			"post order: http %d: %s", resp.StatusCode(), resp.String())
	}
	if !out.Success || out.ErrorMsg != "" {
		// FOK orders killed by the matching engine come back success=true
		// with a non-empty errorMsg, so both fields matter.
		return OrderAck{}, errors.Wrapf(domain.ErrSubmissionFailed,
			"order rejected: %s", out.ErrorMsg)
	}

	g.log.WithField("order_id", out.OrderID).
		Infof("order placed %s %s %.2f @ %s", req.Side, req.AssetID, req.Size, req.Price)
	return OrderAck{OrderID: out.OrderID, Status: out.Status}, nil
}

func (g *ClobGateway) CancelOrder(ctx context.Context, orderID string) error {
	if err := g.rl.Wait(ctx, "clob:order:delete"); err != nil {
		return err
	}
	body, _ := json.Marshal(map[string]string{"orderID": orderID})
	resp, err := g.signedRequest(ctx, http.MethodDelete, "/order", body, nil)
	if err != nil {
		return errors.Wrap(err, "cancel order")
	}
	if resp.IsError() {
		return errors.Errorf("cancel order: http %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

type openOrderResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
}

// OrderState queries the authoritative order record. A transport or auth
// failure yields Known=false; the caller must treat that as "no knowledge",
// never as "not filled".
func (g *ClobGateway) OrderState(ctx context.Context, orderID string) (OrderState, error) {
	if err := g.rl.Wait(ctx, "clob:orders:get"); err != nil {
		return OrderState{OrderID: orderID}, err
	}

	var out openOrderResponse
	resp, err := g.signedRequest(ctx, http.MethodGet, "/data/order/"+orderID, nil, &out)
	if err != nil {
		return OrderState{OrderID: orderID}, errors.Wrapf(domain.ErrVerificationUnknown, "query order: %v", err)
	}
	if resp.IsError() {
		return OrderState{OrderID: orderID}, errors.Wrapf(domain.ErrVerificationUnknown,
			"query order: http %d", resp.StatusCode())
	}

	matched, _ := strconv.ParseFloat(out.SizeMatched, 64)
	original, _ := strconv.ParseFloat(out.OriginalSize, 64)

	state := OrderState{OrderID: orderID, FilledSize: matched, Known: true}
	switch strings.ToUpper(out.Status) {
	case "MATCHED":
		state.Status = domain.LegFilled
		if state.FilledSize == 0 {
			state.FilledSize = original
		}
	case "CANCELED", "CANCELLED":
		if matched > 0 {
			state.Status = domain.LegPartiallyFilled
		} else {
			state.Status = domain.LegCancelled
		}
	case "LIVE", "DELAYED":
		if matched > 0 {
			state.Status = domain.LegPartiallyFilled
		} else {
			state.Status = domain.LegSubmitted
		}
	default:
		state.Known = false
	}
	return state, nil
}

// signedRequest attaches the L2 auth headers and executes the call.
func (g *ClobGateway) signedRequest(ctx context.Context, method, path string, body []byte, out interface{}) (*resty.Response, error) {
	ts := time.Now().Unix()
	sig, err := buildHmacSignature(g.apiSecret, ts, method, path, body)
	if err != nil {
		return nil, err
	}

	r := g.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("POLY_ADDRESS", g.signer.Hex()).
		SetHeader("POLY_SIGNATURE", sig).
		SetHeader("POLY_TIMESTAMP", strconv.FormatInt(ts, 10)).
		SetHeader("POLY_API_KEY", g.apiKey).
		SetHeader("POLY_PASSPHRASE", g.apiPassphrase)
	if body != nil {
		r.SetBody(body)
	}
	if out != nil {
		r.SetResult(out)
	}

	switch method {
	case http.MethodGet:
		return r.Get(path)
	case http.MethodPost:
		return r.Post(path)
	case http.MethodDelete:
		return r.Delete(path)
	default:
		return nil, errors.Errorf("unsupported method %s", method)
	}
}
