package service

import (
	"errors"

	"github.com/vibast-solutions/ms-go-memberships/app/repository"
)

var (
	ErrInvalidRequest           = errors.New("invalid request")
	ErrInvalidIdentity          = errors.New("invalid identity claim")
	ErrInvalidTier              = errors.New("invalid membership tier")
	ErrRecordNotFound           = errors.New("upgrade record not found")
	ErrCheckoutInitiationFailed = errors.New("checkout initiation failed")
	ErrNotYetPaid               = errors.New("payment not yet confirmed by provider")
	ErrMaterializationFailed    = errors.New("account materialization failed")
	ErrProviderUnsupported      = errors.New("provider is not supported")
	ErrCallbackRejected         = errors.New("callback rejected")

	// ErrStoreUnavailable is the repository sentinel re-exported so callers
	// only depend on service errors.
	ErrStoreUnavailable = repository.ErrStoreUnavailable
)
