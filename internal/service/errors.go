package service

import "errors"

var (
	ErrNotFound            = errors.New("not_found")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrAlreadyRefunded     = errors.New("already_refunded")
	ErrNotRefundable       = errors.New("not_refundable")

	ErrMachineNotFound = errors.New("machine_not_found")
	ErrMachineInactive = errors.New("machine_inactive")
	ErrEmptyRewardPool = errors.New("empty_reward_pool")
	ErrPoolExhausted   = errors.New("pool_exhausted")

	ErrAlreadyUsed     = errors.New("already_used")
	ErrExpired         = errors.New("expired")
	ErrRewardCancelled = errors.New("reward_cancelled")
	ErrForbidden       = errors.New("forbidden")
)
