package market

import "errors"

var (
	// ErrUnauthorized is returned when a policy or treasury operation is
	// invoked by anyone other than the administrative principal.
	ErrUnauthorized = errors.New("caller is not the administrative principal")
	// ErrNotSeller is returned when someone other than the listing seller
	// tries to cancel it.
	ErrNotSeller = errors.New("caller is not the listing seller")
	// ErrNotOwner is returned when a seller tries to list an asset held by
	// someone else.
	ErrNotOwner = errors.New("caller is not the current holder")
	// ErrUnknownAsset is returned when an operation names an asset id the
	// registry never issued.
	ErrUnknownAsset = errors.New("unknown asset")
	// ErrInvalidPrice is returned for prices of zero or beyond MaxPrice.
	ErrInvalidPrice = errors.New("invalid price")
	// ErrInvalidRoyalty is returned for royalty terms that exceed the rate
	// ceiling or name no recipient.
	ErrInvalidRoyalty = errors.New("invalid royalty terms")
	// ErrInvalidAccount is returned when an operation names an empty
	// account.
	ErrInvalidAccount = errors.New("invalid account")
	// ErrFeeTooHigh is returned when a fee change exceeds MaxFeeBps.
	ErrFeeTooHigh = errors.New("fee rate above ceiling")
	// ErrAlreadyListed is returned when listing an asset that already has
	// an active listing.
	ErrAlreadyListed = errors.New("asset already listed")
	// ErrNotListed is returned when buying or cancelling an asset with no
	// active listing.
	ErrNotListed = errors.New("asset not listed")
	// ErrInsufficientPayment is returned when the amount offered is below
	// the listing price.
	ErrInsufficientPayment = errors.New("payment below listing price")
	// ErrOperationInProgress is returned when an operation is invoked
	// while another one is still executing, such as a collaborator
	// calling back into the engine mid-settlement.
	ErrOperationInProgress = errors.New("another operation is in progress")
	// ErrTransferFailed wraps custody or fund movements rejected by a
	// collaborator; the whole operation rolls back when it occurs.
	ErrTransferFailed = errors.New("transfer failed")
)

// Kind groups engine failures for callers that map them onto a transport,
// such as the HTTP layer picking status codes.
type Kind int

const (
	// KindInternal covers failures that indicate a bug or a broken
	// database rather than a bad request.
	KindInternal Kind = iota
	// KindUnauthorized covers calls by the wrong principal.
	KindUnauthorized
	// KindInvalidInput covers malformed prices, royalty terms, accounts
	// and unknown assets.
	KindInvalidInput
	// KindStateConflict covers operations that are valid in shape but
	// impossible in the current state.
	KindStateConflict
	// KindInsufficientPayment covers offers below the listing price.
	KindInsufficientPayment
	// KindTransferFailure covers custody or fund moves rejected by a
	// collaborator.
	KindTransferFailure
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidInput:
		return "invalid input"
	case KindStateConflict:
		return "state conflict"
	case KindInsufficientPayment:
		return "insufficient payment"
	case KindTransferFailure:
		return "transfer failure"
	default:
		return "internal"
	}
}

// Classify reports which failure group an engine error belongs to. Errors
// the engine did not produce classify as KindInternal.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrNotSeller):
		return KindUnauthorized
	case errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrInvalidRoyalty),
		errors.Is(err, ErrInvalidAccount),
		errors.Is(err, ErrFeeTooHigh),
		errors.Is(err, ErrUnknownAsset):
		return KindInvalidInput
	case errors.Is(err, ErrAlreadyListed),
		errors.Is(err, ErrNotListed),
		errors.Is(err, ErrNotOwner),
		errors.Is(err, ErrOperationInProgress):
		return KindStateConflict
	case errors.Is(err, ErrInsufficientPayment):
		return KindInsufficientPayment
	case errors.Is(err, ErrTransferFailed):
		return KindTransferFailure
	default:
		return KindInternal
	}
}
