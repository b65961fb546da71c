package vault

import "errors"

// Error classes. Every concrete vault error unwraps to exactly one of these,
// so callers can branch on the class with errors.Is.
var (
	ErrValidation          = errors.New("vault: validation error")
	ErrState               = errors.New("vault: state error")
	ErrAuthorization       = errors.New("vault: authorization error")
	ErrInsufficientBalance = errors.New("vault: insufficient balance")
	ErrArithmetic          = errors.New("vault: arithmetic error")
)

type classError struct {
	msg   string
	class error
}

func (e *classError) Error() string { return e.msg }
func (e *classError) Unwrap() error { return e.class }

func classed(class error, msg string) error {
	return &classError{msg: msg, class: class}
}

var (
	ErrInvalidAmount = classed(ErrValidation, "vault: amount must be positive")
	ErrZeroAddress   = classed(ErrValidation, "vault: address must not be zero")
	ErrInvalidKind   = classed(ErrValidation, "vault: unknown round kind")

	ErrRoundClosed           = classed(ErrState, "vault: round is not open")
	ErrNothingToCancel       = classed(ErrState, "vault: nothing to cancel")
	ErrEmptyRound            = classed(ErrState, "vault: round is empty")
	ErrAlreadySettled        = classed(ErrState, "vault: round is not awaiting settlement")
	ErrUnknownRound          = classed(ErrState, "vault: unknown round")
	ErrNoPriceYet            = classed(ErrState, "vault: no settlement has priced the pool yet")
	ErrRemoteNotConfigured   = classed(ErrState, "vault: remote contract not configured")
	ErrParticipantOutOfRange = classed(ErrState, "vault: participant index out of range")

	ErrUnauthorized = classed(ErrAuthorization, "vault: caller is not the operator")

	ErrInsufficientShares = classed(ErrInsufficientBalance, "vault: insufficient shares")

	ErrOverflow       = classed(ErrArithmetic, "vault: arithmetic overflow")
	ErrUnderflow      = classed(ErrArithmetic, "vault: arithmetic underflow")
	ErrDivisionByZero = classed(ErrArithmetic, "vault: division by zero")
)

var (
	errNilState  = errors.New("vault engine: state not configured")
	errNilToken  = errors.New("vault engine: underlying token not configured")
	errNilSender = errors.New("vault engine: bridge sender not configured")
)
