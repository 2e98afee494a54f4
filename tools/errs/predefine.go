package errs

const (
	ServerInternalError   = 500
	InvalidArgumentError  = 1001
	UnauthenticatedError  = 1002
	NotParticipantError   = 1003
	NotFoundError         = 1004
	SelfRoomError         = 1005
	StoreUnavailableError = 1006
)

var (
	ErrInternal         = NewCodeError(ServerInternalError, "ServerInternalError")
	ErrInvalidArgument  = NewCodeError(InvalidArgumentError, "InvalidArgument")
	ErrUnauthenticated  = NewCodeError(UnauthenticatedError, "Unauthenticated")
	ErrNotParticipant   = NewCodeError(NotParticipantError, "NotParticipant")
	ErrNotFound         = NewCodeError(NotFoundError, "NotFound")
	ErrSelfRoom         = NewCodeError(SelfRoomError, "SelfRoom")
	ErrStoreUnavailable = NewCodeError(StoreUnavailableError, "StoreUnavailable")
)
