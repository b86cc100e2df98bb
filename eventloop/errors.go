package eventloop

import "errors"

// Errors mirroring spec.md §7's error taxonomy for the event loop.
var (
	// ErrWrongGoroutine is the Go analogue of the original's *WrongThread*:
	// a loop-private mutation (RegisterSocket/RegisterTimer/etc.) was
	// attempted from a goroutine other than the one running Exec. Per
	// spec.md §7 this is a fatal programming error, not a recoverable
	// condition — callers are expected to never see it in correct code.
	ErrWrongGoroutine = errors.New("eventloop: mutation from a goroutine other than the loop's own")

	// ErrAlreadySocketRegistered is returned by RegisterSocket for an fd
	// already known to the loop.
	ErrAlreadySocketRegistered = errors.New("eventloop: socket already registered")

	// ErrUnknownSocket is returned by UpdateSocket for an fd the loop does
	// not know about.
	ErrUnknownSocket = errors.New("eventloop: unknown socket fd")

	// ErrUnknownTimer is returned by UnregisterTimer for an id that is not
	// (or no longer) live.
	ErrUnknownTimer = errors.New("eventloop: unknown timer id")

	// ErrMainLoopExists is returned by New when MainEventLoop is requested
	// but a main loop is already installed in this process.
	ErrMainLoopExists = errors.New("eventloop: a main event loop is already installed")

	// ErrSignalHandlersNeedMain is returned by New when SigInt/SigTerm
	// handler flags are requested on a non-main loop (spec.md §4.2: "Only
	// the Main loop may request these").
	ErrSignalHandlersNeedMain = errors.New("eventloop: signal handlers may only be requested by the main loop")
)
