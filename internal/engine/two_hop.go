package engine

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/solve3fi/contracts/internal/errs"
	"github.com/solve3fi/contracts/internal/state"
)

// TwoHopSwapParams describes a trade routed through two pools that share an
// intermediary mint. Amount is the input of the first hop for exact-input
// trades and the output of the second hop for exact-output trades.
type TwoHopSwapParams struct {
	PoolOne                solana.PublicKey
	PoolTwo                solana.PublicKey
	Amount                 uint64
	OtherAmountThreshold   uint64
	AmountSpecifiedIsInput bool
	AToBOne                bool
	AToBTwo                bool
	SqrtPriceLimitOne      uint128.Uint128
	SqrtPriceLimitTwo      uint128.Uint128
	TickArraysOne          []int32
	TickArraysTwo          []int32
}

// TwoHopSwapResult holds the outcome of each hop.
type TwoHopSwapResult struct {
	One SwapResult
	Two SwapResult
}

// AmountIn is the input paid into the first hop.
func (r TwoHopSwapResult) AmountIn() uint64 { return r.One.AmountIn }

// AmountOut is the output paid out of the second hop.
func (r TwoHopSwapResult) AmountOut() uint64 { return r.Two.AmountOut }

// TwoHopSwap runs both hops and commits them together. The threshold applies
// to the route's end-to-end amounts.
func (e *Engine) TwoHopSwap(ctx context.Context, p TwoHopSwapParams) (TwoHopSwapResult, error) {
	if p.PoolOne.Equals(p.PoolTwo) {
		return TwoHopSwapResult{}, errs.ErrDuplicateTwoHopPool
	}

	var res TwoHopSwapResult
	err := e.mutate(ctx, "two_hop_swap", []solana.PublicKey{p.PoolOne, p.PoolTwo}, func(tx *txn) error {
		r, err := e.twoHopSwap(tx, p)
		if err != nil {
			return err
		}
		if err := checkThreshold(p.AmountSpecifiedIsInput, p.OtherAmountThreshold, r.AmountIn(), r.AmountOut()); err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return TwoHopSwapResult{}, err
	}
	e.metrics.RecordSwap(ctx, p.PoolOne.String(), p.AToBOne, res.One.AmountIn, res.One.LPFee+res.One.ProtocolFee, res.One.TicksCrossed)
	e.metrics.RecordSwap(ctx, p.PoolTwo.String(), p.AToBTwo, res.Two.AmountIn, res.Two.LPFee+res.Two.ProtocolFee, res.Two.TicksCrossed)
	return res, nil
}

// QuoteTwoHopSwap computes what TwoHopSwap would return without changing any
// state. The threshold is not enforced.
func (e *Engine) QuoteTwoHopSwap(ctx context.Context, p TwoHopSwapParams) (TwoHopSwapResult, error) {
	if p.PoolOne.Equals(p.PoolTwo) {
		return TwoHopSwapResult{}, errs.ErrDuplicateTwoHopPool
	}
	var res TwoHopSwapResult
	err := e.view(ctx, func(tx *txn) error {
		var err error
		res, err = e.twoHopSwap(tx, p)
		return err
	})
	return res, err
}

func (e *Engine) twoHopSwap(tx *txn, p TwoHopSwapParams) (TwoHopSwapResult, error) {
	one, err := tx.pool(p.PoolOne)
	if err != nil {
		return TwoHopSwapResult{}, err
	}
	two, err := tx.pool(p.PoolTwo)
	if err != nil {
		return TwoHopSwapResult{}, err
	}
	intermediary := outputMint(one, p.AToBOne)
	if !intermediary.Equals(inputMint(two, p.AToBTwo)) {
		return TwoHopSwapResult{}, errs.Newf(errs.ErrInvalidIntermediaryMint,
			"first hop pays %s, second hop takes %s", intermediary, inputMint(two, p.AToBTwo))
	}

	hopOne := SwapParams{
		Pool:                   p.PoolOne,
		SqrtPriceLimit:         p.SqrtPriceLimitOne,
		AmountSpecifiedIsInput: p.AmountSpecifiedIsInput,
		AToB:                   p.AToBOne,
		TickArrays:             p.TickArraysOne,
	}
	hopTwo := SwapParams{
		Pool:                   p.PoolTwo,
		SqrtPriceLimit:         p.SqrtPriceLimitTwo,
		AmountSpecifiedIsInput: p.AmountSpecifiedIsInput,
		AToB:                   p.AToBTwo,
		TickArrays:             p.TickArraysTwo,
	}

	var res TwoHopSwapResult
	if p.AmountSpecifiedIsInput {
		// Exact input flows forwards: the first hop's output is spent in the
		// second.
		hopOne.Amount = p.Amount
		if res.One, err = e.swap(tx, hopOne); err != nil {
			return TwoHopSwapResult{}, err
		}
		hopTwo.Amount = res.One.AmountOut
		if res.Two, err = e.swap(tx, hopTwo); err != nil {
			return TwoHopSwapResult{}, err
		}
	} else {
		// Exact output is priced backwards: the second hop's input is what
		// the first hop has to deliver.
		hopTwo.Amount = p.Amount
		if res.Two, err = e.swap(tx, hopTwo); err != nil {
			return TwoHopSwapResult{}, err
		}
		hopOne.Amount = res.Two.AmountIn
		if res.One, err = e.swap(tx, hopOne); err != nil {
			return TwoHopSwapResult{}, err
		}
	}

	if res.One.AmountOut != res.Two.AmountIn {
		return TwoHopSwapResult{}, errs.Newf(errs.ErrIntermediateAmountMismatch,
			"first hop pays %d, second hop takes %d", res.One.AmountOut, res.Two.AmountIn)
	}
	return res, nil
}

func inputMint(pool *state.Pool, aToB bool) solana.PublicKey {
	if aToB {
		return pool.TokenMintA
	}
	return pool.TokenMintB
}

func outputMint(pool *state.Pool, aToB bool) solana.PublicKey {
	if aToB {
		return pool.TokenMintB
	}
	return pool.TokenMintA
}
