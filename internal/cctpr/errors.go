package cctpr

import "errors"

// Request errors. They are raised before anything is signed or submitted.
var (
	ErrNonPositiveAmount       = errors.New("Transfer amount <= 0 after fees")
	ErrNonPositiveInput        = errors.New("Input amount <= 0")
	ErrSubMicroUsdc            = errors.New("USDC amount finer than 1 µUSDC")
	ErrGaslessFeeNotUsdc       = errors.New("Gasless fee must be 0 if quote is not in USDC")
	ErrGasDropoffLimitExceeded = errors.New("Gas Drop Off Limit Exceeded")
	ErrCorridorNotSupported    = errors.New("corridor not supported")
	ErrSameDomain              = errors.New("source and destination must differ")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrCostExceedsInput        = errors.New("costs exceed input amount")
	ErrUnsupportedDomain       = errors.New("CCTPR is not deployed on domain")
)

// Flow errors.
var (
	ErrFlowFinished    = errors.New("transfer flow already finished")
	ErrUnexpectedInput = errors.New("unexpected step result")
)
