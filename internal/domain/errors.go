package domain

import "errors"

// Sentinel errors shared by every repository implementation.
var (
	ErrCampaignNotFound   = errors.New("nuntius: campaign not found")
	ErrSubscriberNotFound = errors.New("nuntius: subscriber not found")
	ErrSendRecordNotFound = errors.New("nuntius: send record not found")
	ErrAlreadySending     = errors.New("nuntius: campaign is already sending or sent")
	ErrInvalidTransition  = errors.New("nuntius: invalid send result transition")
)
