package calldata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"liquidityDesk/internal/model"
)

// RemoteBuilder asks an HTTP calldata service to encode requests. Every
// endpoint takes a JSON request and answers {"to","data","value"}.
type RemoteBuilder struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ Builder = (*RemoteBuilder)(nil)

// NewRemoteBuilder creates a client for the service at baseURL.
func NewRemoteBuilder(baseURL string, timeout time.Duration, logger *zap.Logger) *RemoteBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RemoteBuilder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type permitJSON struct {
	Batch     *permitBatchJSON  `json:"batch,omitempty"`
	Single    *permitSingleJSON `json:"single,omitempty"`
	Signature string            `json:"signature"`
}

type permitDetailsJSON struct {
	Token      string `json:"token"`
	Amount     string `json:"amount"`
	Expiration uint64 `json:"expiration"`
	Nonce      uint64 `json:"nonce"`
}

type permitBatchJSON struct {
	Details     []permitDetailsJSON `json:"details"`
	Spender     string              `json:"spender"`
	SigDeadline string              `json:"sigDeadline"`
}

type permitSingleJSON struct {
	Details     permitDetailsJSON `json:"details"`
	Spender     string            `json:"spender"`
	SigDeadline string            `json:"sigDeadline"`
}

func detailsJSON(d model.PermitDetails) permitDetailsJSON {
	return permitDetailsJSON{Token: d.Token, Amount: orZero(d.Amount).String(), Expiration: d.Expiration, Nonce: d.Nonce}
}

func encodePermit(sig *model.PermitSignature) *permitJSON {
	if sig == nil {
		return nil
	}
	out := &permitJSON{Signature: hexutil.Encode(sig.Signature)}
	if sig.Batch != nil {
		batch := &permitBatchJSON{Spender: sig.Batch.Spender, SigDeadline: orZero(sig.Batch.SigDeadline).String()}
		for _, d := range sig.Batch.Details {
			batch.Details = append(batch.Details, detailsJSON(d))
		}
		out.Batch = batch
	}
	if sig.Single != nil {
		out.Single = &permitSingleJSON{
			Details:     detailsJSON(sig.Single.Details),
			Spender:     sig.Single.Spender,
			SigDeadline: orZero(sig.Single.SigDeadline).String(),
		}
	}
	return out
}

type swapRequestJSON struct {
	Owner        string      `json:"owner"`
	TokenIn      string      `json:"tokenIn"`
	TokenOut     string      `json:"tokenOut"`
	Fee          uint32      `json:"fee"`
	AmountIn     string      `json:"amountIn"`
	MinAmountOut string      `json:"minAmountOut"`
	Permit       *permitJSON `json:"permit,omitempty"`
	Deadline     int64       `json:"deadline"`
}

type depositRequestJSON struct {
	Owner      string        `json:"owner"`
	Pool       model.PoolKey `json:"pool"`
	TickLower  int32         `json:"tickLower"`
	TickUpper  int32         `json:"tickUpper"`
	TokenID    string        `json:"tokenId,omitempty"`
	Liquidity  string        `json:"liquidity"`
	Amount0Max string        `json:"amount0Max"`
	Amount1Max string        `json:"amount1Max"`
	Recipient  string        `json:"recipient"`
	Permit     *permitJSON   `json:"permit,omitempty"`
	Deadline   int64         `json:"deadline"`
}

type withdrawRequestJSON struct {
	Owner      string        `json:"owner"`
	Pool       model.PoolKey `json:"pool"`
	TokenID    string        `json:"tokenId"`
	Liquidity  string        `json:"liquidity"`
	Amount0Min string        `json:"amount0Min"`
	Amount1Min string        `json:"amount1Min"`
	Recipient  string        `json:"recipient"`
	Deadline   int64         `json:"deadline"`
}

type collectRequestJSON struct {
	Owner     string        `json:"owner"`
	Pool      model.PoolKey `json:"pool"`
	TokenID   string        `json:"tokenId"`
	Recipient string        `json:"recipient"`
	Deadline  int64         `json:"deadline"`
}

type transactionJSON struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

func (r *RemoteBuilder) BuildSwap(ctx context.Context, req SwapRequest) (Transaction, error) {
	return r.post(ctx, "/swap", swapRequestJSON{
		Owner:        req.Owner.Hex(),
		TokenIn:      req.TokenIn.Hex(),
		TokenOut:     req.TokenOut.Hex(),
		Fee:          req.Fee,
		AmountIn:     orZero(req.AmountIn).String(),
		MinAmountOut: orZero(req.MinAmountOut).String(),
		Permit:       encodePermit(req.Permit),
		Deadline:     req.Deadline.Unix(),
	})
}

func (r *RemoteBuilder) BuildDeposit(ctx context.Context, req DepositRequest) (Transaction, error) {
	body := depositRequestJSON{
		Owner:      req.Owner.Hex(),
		Pool:       req.Pool,
		TickLower:  req.TickLower,
		TickUpper:  req.TickUpper,
		Liquidity:  orZero(req.Liquidity).String(),
		Amount0Max: orMax128(req.Amount0Max).String(),
		Amount1Max: orMax128(req.Amount1Max).String(),
		Recipient:  req.Recipient.Hex(),
		Permit:     encodePermit(req.Permit),
		Deadline:   req.Deadline.Unix(),
	}
	if req.TokenID != nil {
		body.TokenID = req.TokenID.String()
	}
	return r.post(ctx, "/deposit", body)
}

func (r *RemoteBuilder) BuildWithdraw(ctx context.Context, req WithdrawRequest) (Transaction, error) {
	return r.post(ctx, "/withdraw", withdrawRequestJSON{
		Owner:      req.Owner.Hex(),
		Pool:       req.Pool,
		TokenID:    orZero(req.TokenID).String(),
		Liquidity:  orZero(req.Liquidity).String(),
		Amount0Min: orZero(req.Amount0Min).String(),
		Amount1Min: orZero(req.Amount1Min).String(),
		Recipient:  req.Recipient.Hex(),
		Deadline:   req.Deadline.Unix(),
	})
}

func (r *RemoteBuilder) BuildCollect(ctx context.Context, req CollectRequest) (Transaction, error) {
	return r.post(ctx, "/collect", collectRequestJSON{
		Owner:     req.Owner.Hex(),
		Pool:      req.Pool,
		TokenID:   orZero(req.TokenID).String(),
		Recipient: req.Recipient.Hex(),
		Deadline:  req.Deadline.Unix(),
	})
}

func (r *RemoteBuilder) post(ctx context.Context, path string, payload interface{}) (Transaction, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Transaction{}, fmt.Errorf("calldata %s: encode request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Transaction{}, fmt.Errorf("calldata %s: build request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Transaction{}, fmt.Errorf("calldata %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Transaction{}, fmt.Errorf("calldata %s: read response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Transaction{}, fmt.Errorf("calldata %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out transactionJSON
	if err := json.Unmarshal(respBody, &out); err != nil {
		return Transaction{}, fmt.Errorf("calldata %s: decode response: %w", path, err)
	}
	tx, err := out.decode()
	if err != nil {
		return Transaction{}, fmt.Errorf("calldata %s: %w", path, err)
	}
	r.logger.Debug("calldata built",
		zap.String("endpoint", path),
		zap.String("to", tx.To.Hex()),
		zap.Int("data_len", len(tx.Data)),
	)
	return tx, nil
}

func (t transactionJSON) decode() (Transaction, error) {
	if !common.IsHexAddress(t.To) {
		return Transaction{}, fmt.Errorf("invalid to address %q", t.To)
	}
	data, err := hexutil.Decode(t.Data)
	if err != nil {
		return Transaction{}, fmt.Errorf("invalid data: %w", err)
	}
	value := new(big.Int)
	if t.Value != "" {
		if _, ok := value.SetString(t.Value, 0); !ok {
			return Transaction{}, fmt.Errorf("invalid value %q", t.Value)
		}
	}
	return Transaction{To: common.HexToAddress(t.To), Data: data, Value: value}, nil
}
